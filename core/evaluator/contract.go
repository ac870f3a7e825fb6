package evaluator

import (
	"encoding/json"
	"fmt"

	"gamebankcore/contract"
	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

// evalContractDeploy implements spec section 4.4's contract_deploy: create
// a contract object, load the bytecode into the sandbox, and run its
// top-level initializer. A throwing initializer fails the whole operation,
// which the enclosing transaction session then discards (section 4.6).
func evalContractDeploy(c *Context, op *types.ContractDeployOp) error {
	if _, err := requireAccount(c, op.Creator); err != nil {
		return err
	}
	if _, ok, err := state.GetContract(c.RW, op.Name); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: contract_deploy: %q already deployed", op.Name)
	}
	if c.ContractRuntime == nil {
		return fmt.Errorf("evaluator: contract_deploy: no contract runtime configured")
	}
	if err := c.ContractRuntime.Validate(op.Bytecode); err != nil {
		return fmt.Errorf("evaluator: contract_deploy: %w", err)
	}

	sandbox := contract.NewSandbox(c.RW, c.HeadBlock, c.Hashes, op.Name, op.Creator, op.Creator)
	limiter := contract.NewStepLimiter(c.Params.ContractStepBudget, c.Params.ContractStepRefillPerSecond)
	if err := c.ContractRuntime.Init(op.Bytecode, sandbox, limiter); err != nil {
		return fmt.Errorf("evaluator: contract_deploy: init: %w", err)
	}

	if err := state.CreateContract(c.RW, types.SignedContract{
		Creator:        op.Creator,
		Name:           op.Name,
		VersionHash:    op.VersionHash,
		Bytecode:       op.Bytecode,
		ABI:            op.ABI,
		Balance:        types.Zero(types.AssetLiquid),
		CreatedUnix:    c.HeadTime,
		LastUpdateUnix: c.HeadTime,
	}); err != nil {
		return err
	}
	if err := sandbox.Flush(c.HeadTime); err != nil {
		return err
	}
	emitContractLogs(c, sandbox.Logs)
	return nil
}

// evalContractCall implements contract_call: invoke a named method in the
// sandbox under the same undo session as the enclosing transaction.
func evalContractCall(c *Context, op *types.ContractCallOp) error {
	if _, err := requireAccount(c, op.Caller); err != nil {
		return err
	}
	sc, ok, err := state.GetContract(c.RW, op.Contract)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: contract_call: %q not deployed", op.Contract)
	}
	if c.ContractRuntime == nil {
		return fmt.Errorf("evaluator: contract_call: no contract runtime configured")
	}

	sandbox := contract.NewSandbox(c.RW, c.HeadBlock, c.Hashes, op.Contract, op.Caller, sc.Creator)
	limiter := contract.NewStepLimiter(c.Params.ContractStepBudget, c.Params.ContractStepRefillPerSecond)
	if err := c.ContractRuntime.Call(sc.Bytecode, op.Method, op.ArgsJSON, sandbox, limiter); err != nil {
		return fmt.Errorf("evaluator: contract_call: %w", err)
	}

	if err := sandbox.Flush(c.HeadTime); err != nil {
		return err
	}
	if err := state.ModifyContract(c.RW, op.Contract, func(sc *types.SignedContract) {
		sc.LastUpdateUnix = c.HeadTime
	}); err != nil {
		return err
	}
	emitContractLogs(c, sandbox.Logs)
	return nil
}

// contractLogFields is the JSON shape recorded for an EventContractLog: the
// key a script passed to contract.emit (or "transfer" for a host-level
// balance move), plus the table it logged.
type contractLogFields struct {
	Key   string         `json:"key"`
	Table map[string]any `json:"table"`
}

func emitContractLogs(c *Context, logs []contract.ContractLog) {
	if c.Emit == nil {
		return
	}
	for _, l := range logs {
		encoded, err := json.Marshal(contractLogFields{Key: l.Key, Table: l.Table})
		if err != nil {
			continue
		}
		c.emit(types.EventContractLog, string(encoded))
	}
}

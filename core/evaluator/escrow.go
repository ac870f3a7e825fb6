package evaluator

import (
	"fmt"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

func evalEscrowTransfer(c *Context, op *types.EscrowTransferOp) error {
	from, err := requireAccount(c, op.From)
	if err != nil {
		return err
	}
	if _, err := requireAccount(c, op.To); err != nil {
		return err
	}
	if _, err := requireAccount(c, op.Agent); err != nil {
		return err
	}
	if _, ok, err := state.GetEscrow(c.RW, op.From, op.EscrowID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: escrow_transfer: escrow %d already exists for %s", op.EscrowID, op.From)
	}
	total := new(amountHelper).sub(op.Amount.Amount, zeroAmount())
	total.Add(total, op.Fee.Amount)
	if from.Balance.Amount.Cmp(total) < 0 {
		return fmt.Errorf("evaluator: escrow_transfer: %s has insufficient balance", op.From)
	}
	if err := state.ModifyAccount(c.RW, op.From, func(a *types.Account) {
		a.Balance.Amount.Sub(a.Balance.Amount, total)
	}); err != nil {
		return err
	}
	return state.PutEscrow(c.RW, types.Escrow{
		From:           op.From,
		To:             op.To,
		Agent:          op.Agent,
		EscrowID:       op.EscrowID,
		Amount:         op.Amount,
		Fee:            op.Fee,
		RatifyByUnix:   op.RatifyByUnix,
		ExpirationUnix: op.ExpirationUnix,
		Status:         types.EscrowPending,
		JSONMeta:       op.JSONMeta,
	})
}

func evalEscrowApprove(c *Context, op *types.EscrowApproveOp) error {
	e, ok, err := state.GetEscrow(c.RW, op.From, op.EscrowID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: escrow_approve: escrow %d does not exist for %s", op.EscrowID, op.From)
	}
	if op.Who != e.To && op.Who != e.Agent {
		return fmt.Errorf("evaluator: escrow_approve: %s is not a party that ratifies this escrow", op.Who)
	}
	if !op.Approve {
		// A rejection refunds immediately and closes the escrow out from
		// under the ratification window.
		if err := state.ModifyAccount(c.RW, e.From, func(a *types.Account) {
			a.Balance.Amount.Add(a.Balance.Amount, e.Amount.Amount)
			a.Balance.Amount.Add(a.Balance.Amount, e.Fee.Amount)
		}); err != nil {
			return err
		}
		return state.RemoveEscrow(c.RW, op.From, op.EscrowID)
	}
	return state.ModifyEscrow(c.RW, op.From, op.EscrowID, func(e *types.Escrow) {
		if op.Who == e.To {
			e.ToApproved = true
		}
		if op.Who == e.Agent {
			e.AgentApproved = true
		}
		if e.ToApproved && e.AgentApproved {
			e.Status = types.EscrowRatified
		}
	})
}

func evalEscrowDispute(c *Context, op *types.EscrowDisputeOp) error {
	e, ok, err := state.GetEscrow(c.RW, op.From, op.EscrowID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: escrow_dispute: escrow %d does not exist for %s", op.EscrowID, op.From)
	}
	if op.Who != e.From && op.Who != e.To {
		return fmt.Errorf("evaluator: escrow_dispute: %s is not a party to this escrow", op.Who)
	}
	if e.Status != types.EscrowRatified {
		return fmt.Errorf("evaluator: escrow_dispute: escrow %d is not ratified", op.EscrowID)
	}
	return state.ModifyEscrow(c.RW, op.From, op.EscrowID, func(e *types.Escrow) {
		e.Status = types.EscrowDisputed
		e.DisputeRaisedBy = op.Who
	})
}

func evalEscrowRelease(c *Context, op *types.EscrowReleaseOp) error {
	e, ok, err := state.GetEscrow(c.RW, op.From, op.EscrowID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: escrow_release: escrow %d does not exist for %s", op.EscrowID, op.From)
	}
	if _, err := requireAccount(c, op.Receiver); err != nil {
		return err
	}
	switch e.Status {
	case types.EscrowDisputed:
		if op.Who != e.Agent {
			return fmt.Errorf("evaluator: escrow_release: only the agent may release a disputed escrow")
		}
	case types.EscrowRatified:
		if op.Who != e.From && op.Who != e.To {
			return fmt.Errorf("evaluator: escrow_release: %s is not a party to this escrow", op.Who)
		}
		if op.Who == e.To && op.Receiver != e.From {
			return fmt.Errorf("evaluator: escrow_release: %s may only release funds back to %s", e.To, e.From)
		}
	default:
		return fmt.Errorf("evaluator: escrow_release: escrow %d is not releasable in its current state", op.EscrowID)
	}
	if op.Receiver != e.From && op.Receiver != e.To {
		return fmt.Errorf("evaluator: escrow_release: receiver must be a party to the escrow")
	}
	if e.Amount.Amount.Cmp(op.Amount.Amount) < 0 {
		return fmt.Errorf("evaluator: escrow_release: release amount exceeds escrow balance")
	}
	if err := state.ModifyAccount(c.RW, op.Receiver, func(a *types.Account) {
		a.Balance.Amount.Add(a.Balance.Amount, op.Amount.Amount)
	}); err != nil {
		return err
	}
	remaining := new(amountHelper).sub(e.Amount.Amount, op.Amount.Amount)
	if remaining.Sign() <= 0 {
		return state.RemoveEscrow(c.RW, op.From, op.EscrowID)
	}
	return state.ModifyEscrow(c.RW, op.From, op.EscrowID, func(e *types.Escrow) {
		e.Amount.Amount = remaining
	})
}

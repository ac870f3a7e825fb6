package evaluator

import (
	"fmt"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

func evalCrowdfundingCreate(c *Context, op *types.CrowdfundingCreateOp) error {
	if _, err := requireAccount(c, op.Originator); err != nil {
		return err
	}
	if _, ok, err := state.GetCrowdfunding(c.RW, op.Originator, op.FundID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: crowdfunding_create: fund %d already exists for %s", op.FundID, op.Originator)
	}
	return state.PutCrowdfunding(c.RW, types.Crowdfunding{
		Originator:     op.Originator,
		FundID:         op.FundID,
		Target:         op.Target,
		Raised:         types.Zero(op.Target.Kind),
		ExpirationUnix: op.ExpirationUnix,
		JSONMeta:       op.JSONMeta,
	})
}

func evalCrowdfundingInvest(c *Context, op *types.CrowdfundingInvestOp) error {
	investor, err := requireAccount(c, op.Investor)
	if err != nil {
		return err
	}
	fund, ok, err := state.GetCrowdfunding(c.RW, op.Originator, op.FundID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: crowdfunding_invest: fund %d does not exist for %s", op.FundID, op.Originator)
	}
	if fund.Finished {
		return fmt.Errorf("evaluator: crowdfunding_invest: fund %d is already finished", op.FundID)
	}
	if fund.ExpirationUnix <= c.HeadTime {
		return fmt.Errorf("evaluator: crowdfunding_invest: fund %d has expired", op.FundID)
	}
	if op.Amount.Kind != fund.Target.Kind {
		return fmt.Errorf("evaluator: crowdfunding_invest: investment asset kind does not match the fund target")
	}
	var bal *types.Asset
	if op.Amount.Kind == types.AssetLiquid {
		bal = &investor.Balance
	} else {
		bal = &investor.DebtBalance
	}
	if bal.Amount.Cmp(op.Amount.Amount) < 0 {
		return fmt.Errorf("evaluator: crowdfunding_invest: %s has insufficient balance", op.Investor)
	}
	if err := state.ModifyAccount(c.RW, op.Investor, func(a *types.Account) {
		if op.Amount.Kind == types.AssetLiquid {
			a.Balance.Amount.Sub(a.Balance.Amount, op.Amount.Amount)
		} else {
			a.DebtBalance.Amount.Sub(a.DebtBalance.Amount, op.Amount.Amount)
		}
	}); err != nil {
		return err
	}
	if err := state.ModifyCrowdfunding(c.RW, op.Originator, op.FundID, func(f *types.Crowdfunding) {
		f.Raised.Amount.Add(f.Raised.Amount, op.Amount.Amount)
	}); err != nil {
		return err
	}
	return state.PutCrowdfundingInvest(c.RW, types.CrowdfundingInvest{
		Originator:   op.Originator,
		FundID:       op.FundID,
		Investor:     op.Investor,
		Amount:       op.Amount,
		InvestedUnix: c.HeadTime,
	})
}

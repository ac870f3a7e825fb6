package evaluator

import (
	"fmt"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

func evalTransferToSavings(c *Context, op *types.TransferToSavingsOp) error {
	from, err := requireAccount(c, op.From)
	if err != nil {
		return err
	}
	if _, err := requireAccount(c, op.To); err != nil {
		return err
	}
	if op.Amount.Kind == types.AssetLiquid {
		if from.Balance.Amount.Cmp(op.Amount.Amount) < 0 {
			return fmt.Errorf("evaluator: transfer_to_savings: %s has insufficient liquid balance", op.From)
		}
	} else if from.DebtBalance.Amount.Cmp(op.Amount.Amount) < 0 {
		return fmt.Errorf("evaluator: transfer_to_savings: %s has insufficient debt balance", op.From)
	}
	if err := state.ModifyAccount(c.RW, op.From, func(a *types.Account) {
		if op.Amount.Kind == types.AssetLiquid {
			a.Balance.Amount.Sub(a.Balance.Amount, op.Amount.Amount)
		} else {
			a.DebtBalance.Amount.Sub(a.DebtBalance.Amount, op.Amount.Amount)
		}
	}); err != nil {
		return err
	}
	return state.ModifyAccount(c.RW, op.To, func(a *types.Account) {
		if op.Amount.Kind == types.AssetLiquid {
			a.SavingsBalance.Amount.Add(a.SavingsBalance.Amount, op.Amount.Amount)
		} else {
			a.SavingsDebtBalance.Amount.Add(a.SavingsDebtBalance.Amount, op.Amount.Amount)
		}
	})
}

func evalTransferFromSavings(c *Context, op *types.TransferFromSavingsOp) error {
	from, err := requireAccount(c, op.From)
	if err != nil {
		return err
	}
	if _, err := requireAccount(c, op.To); err != nil {
		return err
	}
	if _, ok, err := state.GetSavingsWithdrawal(c.RW, op.From, op.RequestID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: transfer_from_savings: request %d already exists for %s", op.RequestID, op.From)
	}
	if op.Amount.Kind == types.AssetLiquid {
		if from.SavingsBalance.Amount.Cmp(op.Amount.Amount) < 0 {
			return fmt.Errorf("evaluator: transfer_from_savings: %s has insufficient savings balance", op.From)
		}
	} else if from.SavingsDebtBalance.Amount.Cmp(op.Amount.Amount) < 0 {
		return fmt.Errorf("evaluator: transfer_from_savings: %s has insufficient savings debt balance", op.From)
	}
	if err := state.ModifyAccount(c.RW, op.From, func(a *types.Account) {
		if op.Amount.Kind == types.AssetLiquid {
			a.SavingsBalance.Amount.Sub(a.SavingsBalance.Amount, op.Amount.Amount)
		} else {
			a.SavingsDebtBalance.Amount.Sub(a.SavingsDebtBalance.Amount, op.Amount.Amount)
		}
	}); err != nil {
		return err
	}
	return state.PutSavingsWithdrawal(c.RW, types.SavingsWithdrawal{
		From:         op.From,
		RequestID:    op.RequestID,
		To:           op.To,
		Amount:       op.Amount,
		Memo:         op.Memo,
		CompleteUnix: c.HeadTime + c.Params.PowerDownWeekSeconds/7*3, // 3-day savings delay
	})
}

func evalCancelTransferFromSavings(c *Context, op *types.CancelTransferFromSavingsOp) error {
	w, ok, err := state.GetSavingsWithdrawal(c.RW, op.From, op.RequestID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: cancel_transfer_from_savings: request %d does not exist for %s", op.RequestID, op.From)
	}
	if err := state.ModifyAccount(c.RW, op.From, func(a *types.Account) {
		if w.Amount.Kind == types.AssetLiquid {
			a.SavingsBalance.Amount.Add(a.SavingsBalance.Amount, w.Amount.Amount)
		} else {
			a.SavingsDebtBalance.Amount.Add(a.SavingsDebtBalance.Amount, w.Amount.Amount)
		}
	}); err != nil {
		return err
	}
	return state.RemoveSavingsWithdrawal(c.RW, op.From, op.RequestID)
}

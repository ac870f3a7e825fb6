package evaluator

import (
	"fmt"
	"math/big"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

func evalTransfer(c *Context, op *types.TransferOp) error {
	from, err := requireAccount(c, op.From)
	if err != nil {
		return err
	}
	if _, err := requireAccount(c, op.To); err != nil {
		return err
	}
	var bal types.Asset
	if op.Amount.Kind == types.AssetLiquid {
		bal = from.Balance
	} else {
		bal = from.DebtBalance
	}
	if bal.Amount.Cmp(op.Amount.Amount) < 0 {
		return fmt.Errorf("evaluator: transfer: %s has insufficient balance", op.From)
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
			a.Balance.Amount.Add(a.Balance.Amount, op.Amount.Amount)
		} else {
			a.DebtBalance.Amount.Add(a.DebtBalance.Amount, op.Amount.Amount)
		}
	})
}

func evalTransferToVesting(c *Context, op *types.TransferToVestingOp) error {
	from, err := requireAccount(c, op.From)
	if err != nil {
		return err
	}
	if _, err := requireAccount(c, op.To); err != nil {
		return err
	}
	if from.Balance.Amount.Cmp(op.Amount.Amount) < 0 {
		return fmt.Errorf("evaluator: transfer_to_vesting: %s has insufficient liquid balance", op.From)
	}
	g, err := state.Global(c.RW)
	if err != nil {
		return err
	}
	newShares := liquidToVesting(g, op.Amount.Amount)
	if err := state.ModifyAccount(c.RW, op.From, func(a *types.Account) {
		a.Balance.Amount.Sub(a.Balance.Amount, op.Amount.Amount)
	}); err != nil {
		return err
	}
	if err := state.ModifyAccount(c.RW, op.To, func(a *types.Account) {
		a.VestingShares.Amount.Add(a.VestingShares.Amount, newShares)
	}); err != nil {
		return err
	}
	return state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		g.TotalVestingFund.Amount.Add(g.TotalVestingFund.Amount, op.Amount.Amount)
		g.TotalVestingShares.Amount.Add(g.TotalVestingShares.Amount, newShares)
	})
}

func evalWithdrawVesting(c *Context, op *types.WithdrawVestingOp) error {
	acct, err := requireAccount(c, op.Account)
	if err != nil {
		return err
	}
	if acct.VestingShares.Amount.Cmp(op.VestingShares.Amount) < 0 {
		return fmt.Errorf("evaluator: withdraw_vesting: %s does not have that many vesting shares", op.Account)
	}
	return state.ModifyAccount(c.RW, op.Account, func(a *types.Account) {
		intervals := int64(c.Params.PowerDownIntervals)
		if intervals <= 0 {
			intervals = 13
		}
		rate := new(big.Int).Quo(op.VestingShares.Amount, big.NewInt(intervals))
		a.VestingWithdrawRate = types.NewAsset(types.AssetVesting, rate)
		a.ToWithdraw = new(big.Int).Set(op.VestingShares.Amount)
		a.Withdrawn = big.NewInt(0)
		if op.VestingShares.IsZero() {
			a.NextVestingWithdrawal = 0
		} else {
			a.NextVestingWithdrawal = c.HeadTime + c.Params.PowerDownWeekSeconds
		}
	})
}

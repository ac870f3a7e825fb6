package evaluator

import (
	"fmt"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

func evalSetWithdrawVestingRoute(c *Context, op *types.SetWithdrawVestingRouteOp) error {
	if _, err := requireAccount(c, op.From); err != nil {
		return err
	}
	existing, err := state.WithdrawRoutesFor(c.RW, op.From)
	if err != nil {
		return err
	}
	var total uint32
	for _, r := range existing {
		total += uint32(r.PercentBps)
	}
	for _, r := range op.Routes {
		if _, err := requireAccount(c, r.ToAccount); err != nil {
			return err
		}
		if err := state.SetWithdrawRoute(c.RW, types.WithdrawRoute{
			From:       op.From,
			To:         r.ToAccount,
			PercentBps: r.Percent,
			AutoVest:   r.AutoVest,
		}); err != nil {
			return err
		}
	}
	return nil
}

func evalClaimRewardBalance(c *Context, op *types.ClaimRewardBalanceOp) error {
	acct, err := requireAccount(c, op.Account)
	if err != nil {
		return err
	}
	if acct.RewardLiquidBalance.Amount.Cmp(op.RewardLiquid.Amount) < 0 {
		return fmt.Errorf("evaluator: claim_reward_balance: insufficient reward liquid balance")
	}
	if acct.RewardDebtBalance.Amount.Cmp(op.RewardDebt.Amount) < 0 {
		return fmt.Errorf("evaluator: claim_reward_balance: insufficient reward debt balance")
	}
	if acct.RewardVestingShares.Amount.Cmp(op.RewardVesting.Amount) < 0 {
		return fmt.Errorf("evaluator: claim_reward_balance: insufficient reward vesting shares")
	}
	g, err := state.Global(c.RW)
	if err != nil {
		return err
	}
	claimedVestingBalance := vestingToLiquid(g, op.RewardVesting.Amount)
	if err := state.ModifyAccount(c.RW, op.Account, func(a *types.Account) {
		a.RewardLiquidBalance.Amount.Sub(a.RewardLiquidBalance.Amount, op.RewardLiquid.Amount)
		a.Balance.Amount.Add(a.Balance.Amount, op.RewardLiquid.Amount)
		a.RewardDebtBalance.Amount.Sub(a.RewardDebtBalance.Amount, op.RewardDebt.Amount)
		a.DebtBalance.Amount.Add(a.DebtBalance.Amount, op.RewardDebt.Amount)
		a.RewardVestingShares.Amount.Sub(a.RewardVestingShares.Amount, op.RewardVesting.Amount)
		a.RewardVestingBalance.Amount.Sub(a.RewardVestingBalance.Amount, claimedVestingBalance)
		a.VestingShares.Amount.Add(a.VestingShares.Amount, op.RewardVesting.Amount)
	}); err != nil {
		return err
	}
	return state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		g.PendingRewardedVestingShares.Amount.Sub(g.PendingRewardedVestingShares.Amount, op.RewardVesting.Amount)
		g.PendingRewardedVestingBalance.Amount.Sub(g.PendingRewardedVestingBalance.Amount, claimedVestingBalance)
		g.TotalVestingShares.Amount.Add(g.TotalVestingShares.Amount, op.RewardVesting.Amount)
		g.TotalVestingFund.Amount.Add(g.TotalVestingFund.Amount, claimedVestingBalance)
	})
}

func evalDelegateVestingShares(c *Context, op *types.DelegateVestingSharesOp) error {
	delegator, err := requireAccount(c, op.Delegator)
	if err != nil {
		return err
	}
	if _, err := requireAccount(c, op.Delegatee); err != nil {
		return err
	}
	existing, _, err := state.GetDelegation(c.RW, op.Delegator, op.Delegatee)
	if err != nil {
		return err
	}
	prevShares := existing.VestingShares.Amount
	if prevShares == nil {
		prevShares = zeroAmount()
	}
	delta := new(amountHelper).sub(op.VestingShares.Amount, prevShares)
	if delta.Sign() > 0 {
		available := new(amountHelper).sub(delegator.VestingShares.Amount, delegator.DelegatedVestingShares.Amount)
		available = new(amountHelper).sub(available, delegator.VestingWithdrawRate.Amount)
		if available.Cmp(delta) < 0 {
			return fmt.Errorf("evaluator: delegate_vesting_shares: %s does not have enough free vesting shares", op.Delegator)
		}
	}
	if err := state.ModifyAccount(c.RW, op.Delegator, func(a *types.Account) {
		a.DelegatedVestingShares.Amount.Add(a.DelegatedVestingShares.Amount, delta)
	}); err != nil {
		return err
	}
	if delta.Sign() > 0 {
		if err := state.ModifyAccount(c.RW, op.Delegatee, func(a *types.Account) {
			a.ReceivedVestingShares.Amount.Add(a.ReceivedVestingShares.Amount, delta)
		}); err != nil {
			return err
		}
	} else if delta.Sign() < 0 {
		// Decrease: the delegatee's received shares drop immediately, but the
		// delegator only gets the freed shares back after a delay (queued as
		// a VestingDelegationExpiration), per section 3's delegation model.
		returned := new(amountHelper).negate(delta)
		if err := state.ModifyAccount(c.RW, op.Delegatee, func(a *types.Account) {
			a.ReceivedVestingShares.Amount.Sub(a.ReceivedVestingShares.Amount, returned)
		}); err != nil {
			return err
		}
		if err := state.QueueDelegationExpiration(c.RW, types.VestingDelegationExpiration{
			ID:             delegationExpirationID(c),
			Delegator:      op.Delegator,
			VestingShares:  types.NewAsset(types.AssetVesting, returned),
			ExpirationUnix: c.HeadTime + c.Params.CashoutWindowSeconds,
		}); err != nil {
			return err
		}
	}
	if op.VestingShares.IsZero() {
		return state.RemoveDelegation(c.RW, op.Delegator, op.Delegatee)
	}
	return state.PutDelegation(c.RW, types.VestingDelegation{
		Delegator:     op.Delegator,
		Delegatee:     op.Delegatee,
		VestingShares: op.VestingShares,
	})
}

func delegationExpirationID(c *Context) uint64 {
	return uint64(c.HeadBlock)<<32 | uint64(uint32(c.TxIndex))<<16 | uint64(uint16(c.OpIndex))
}

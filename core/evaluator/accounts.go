package evaluator

import (
	"fmt"
	"math/big"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

func evalAccountCreate(c *Context, op *types.AccountCreateOp) error {
	creator, err := requireAccount(c, op.Creator)
	if err != nil {
		return err
	}
	if _, ok, err := state.GetAccount(c.RW, op.NewAccountName); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("evaluator: account_create: %q already exists", op.NewAccountName)
	}
	if creator.Balance.Amount.Cmp(op.Fee.Amount) < 0 {
		return fmt.Errorf("evaluator: account_create: %s cannot cover the creation fee", op.Creator)
	}
	g, err := state.Global(c.RW)
	if err != nil {
		return err
	}
	// The fee immediately becomes vesting stake for the new account (section
	// 3's account lifecycle), scaled by the one-shot genesis multiplier only
	// for accounts created while the head block is still 0 (HeadBlock == 0).
	feeShares := liquidToVesting(g, op.Fee.Amount)
	if c.HeadBlock == 0 && c.Params.GenesisVestingShareMultiplierOneShot > 1 {
		feeShares = new(big.Int).Mul(feeShares, big.NewInt(int64(c.Params.GenesisVestingShareMultiplierOneShot)))
	}
	if err := state.ModifyAccount(c.RW, op.Creator, func(a *types.Account) {
		a.Balance.Amount.Sub(a.Balance.Amount, op.Fee.Amount)
	}); err != nil {
		return err
	}
	if err := state.CreateAccount(c.RW, types.Account{
		Name:                   op.NewAccountName,
		Owner:                  op.Owner,
		Active:                 op.Active,
		Posting:                op.Posting,
		MemoKey:                op.MemoKey,
		Balance:                types.Zero(types.AssetLiquid),
		DebtBalance:            types.Zero(types.AssetDebt),
		SavingsBalance:         types.Zero(types.AssetLiquid),
		SavingsDebtBalance:     types.Zero(types.AssetDebt),
		RewardLiquidBalance:    types.Zero(types.AssetLiquid),
		RewardDebtBalance:      types.Zero(types.AssetDebt),
		RewardVestingBalance:   types.Zero(types.AssetLiquid),
		RewardVestingShares:    types.Zero(types.AssetVesting),
		VestingShares:          types.NewAsset(types.AssetVesting, feeShares),
		DelegatedVestingShares: types.Zero(types.AssetVesting),
		ReceivedVestingShares:  types.Zero(types.AssetVesting),
		VestingWithdrawRate:    types.Zero(types.AssetVesting),
		ToWithdraw:             big.NewInt(0),
		Withdrawn:              big.NewInt(0),
		VotingPower:            10000,
		RecoveryAccount:        op.Creator,
		CreatedUnix:            c.HeadTime,
		CanVote:                true,
		InterestSecondsBalance: big.NewInt(0),
		LastInterestUpdateUnix: c.HeadTime,
		ProxiedVSFShares:       [4]*big.Int{big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0)},
	}); err != nil {
		return err
	}
	return state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		g.TotalVestingFund.Amount.Add(g.TotalVestingFund.Amount, op.Fee.Amount)
		g.TotalVestingShares.Amount.Add(g.TotalVestingShares.Amount, feeShares)
	})
}

func evalWitnessUpdate(c *Context, op *types.WitnessUpdateOp) error {
	if _, err := requireAccount(c, op.Owner); err != nil {
		return err
	}
	_, exists, err := state.GetWitness(c.RW, op.Owner)
	if err != nil {
		return err
	}
	if !exists {
		return state.PutWitness(c.RW, types.Witness{
			Owner:                 op.Owner,
			SigningKey:            op.SigningKey,
			URL:                   op.URL,
			AccountCreationFee:    op.AccountCreationFee,
			MaxBlockSize:          op.MaxBlockSize,
			InterestRateBps:       op.InterestRateBps,
			Votes:                 big.NewInt(0),
			VirtualPosition:       big.NewInt(0),
			VirtualScheduledTime:  big.NewInt(0),
			CreatedUnix:           c.HeadTime,
		})
	}
	// A shut-down witness (empty SigningKey) is re-enabled by any
	// witness_update supplying a new key. witness_update requires only the
	// owner's active authority (WitnessUpdateOp.RequiredAuths); no owner
	// signature is demanded for re-enabling.
	return state.ModifyWitness(c.RW, op.Owner, func(w *types.Witness) {
		w.SigningKey = op.SigningKey
		w.URL = op.URL
		w.AccountCreationFee = op.AccountCreationFee
		w.MaxBlockSize = op.MaxBlockSize
		w.InterestRateBps = op.InterestRateBps
	})
}

// adjustWitnessVote applies delta (in vesting-stake units) to a witness's
// vote tally, the adjust_witness_vote primitive section 4.4 names for both
// direct votes and proxy chains.
func adjustWitnessVote(c *Context, witnessOwner string, delta *big.Int) error {
	if delta.Sign() == 0 {
		return nil
	}
	return state.ModifyWitness(c.RW, witnessOwner, func(w *types.Witness) {
		w.Votes = new(big.Int).Add(w.Votes, delta)
	})
}

// effectiveStake returns the stake that counts toward an account's own
// witness votes: its vesting shares plus received minus delegated shares,
// plus the shares proxied to it at every depth (ProxiedVSFShares).
func effectiveStake(a types.Account) *big.Int {
	total := new(big.Int).Add(a.VestingShares.Amount, a.ReceivedVestingShares.Amount)
	total = new(big.Int).Sub(total, a.DelegatedVestingShares.Amount)
	for _, p := range a.ProxiedVSFShares {
		if p != nil {
			total = new(big.Int).Add(total, p)
		}
	}
	return total
}

func evalAccountWitnessVote(c *Context, op *types.AccountWitnessVoteOp) error {
	voter, err := requireAccount(c, op.Account)
	if err != nil {
		return err
	}
	if voter.Proxy != "" {
		return fmt.Errorf("evaluator: account_witness_vote: %s has a proxy set; clear it first", op.Account)
	}
	if _, err := requireAccount(c, op.Witness); err != nil {
		return err
	}
	stake := effectiveStake(voter)
	if op.Approve {
		if voter.WitnessesVotedFor >= 30 {
			return fmt.Errorf("evaluator: account_witness_vote: %s already voted for 30 witnesses", op.Account)
		}
		if err := adjustWitnessVote(c, op.Witness, stake); err != nil {
			return err
		}
		return state.ModifyAccount(c.RW, op.Account, func(a *types.Account) {
			a.WitnessesVotedFor++
		})
	}
	if err := adjustWitnessVote(c, op.Witness, new(big.Int).Neg(stake)); err != nil {
		return err
	}
	return state.ModifyAccount(c.RW, op.Account, func(a *types.Account) {
		if a.WitnessesVotedFor > 0 {
			a.WitnessesVotedFor--
		}
	})
}

func evalAccountWitnessProxy(c *Context, op *types.AccountWitnessProxyOp) error {
	acct, err := requireAccount(c, op.Account)
	if err != nil {
		return err
	}
	if op.Proxy == op.Account {
		return fmt.Errorf("evaluator: account_witness_proxy: cannot proxy to self")
	}
	if op.Proxy != "" {
		depth := 0
		cursor := op.Proxy
		for {
			if cursor == op.Account {
				return fmt.Errorf("evaluator: account_witness_proxy: proxy chain would cycle back to %s", op.Account)
			}
			next, ok, err := state.GetAccount(c.RW, cursor)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("evaluator: account_witness_proxy: unknown proxy %q", cursor)
			}
			if next.Proxy == "" {
				break
			}
			cursor = next.Proxy
			depth++
			if depth > c.Params.MaxProxyDepth {
				return fmt.Errorf("evaluator: account_witness_proxy: proxy chain exceeds max depth %d", c.Params.MaxProxyDepth)
			}
		}
	}
	stake := effectiveStake(acct)
	if acct.Proxy != "" {
		if err := propagateProxiedShares(c, acct.Proxy, new(big.Int).Neg(stake), 0); err != nil {
			return err
		}
	}
	if op.Proxy != "" {
		if err := propagateProxiedShares(c, op.Proxy, stake, 0); err != nil {
			return err
		}
	}
	return state.ModifyAccount(c.RW, op.Account, func(a *types.Account) {
		a.Proxy = op.Proxy
	})
}

// propagateProxiedShares adds delta into proxy's ProxiedVSFShares[depth] and
// recurses up its own proxy chain, stopping after four levels. Witness vote
// totals are not adjusted here: votes already cast by the proxy, or by an
// account further up its chain, are not re-tallied.
func propagateProxiedShares(c *Context, proxy string, delta *big.Int, depth int) error {
	if depth >= 4 {
		return nil
	}
	p, ok, err := state.GetAccount(c.RW, proxy)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := state.ModifyAccount(c.RW, proxy, func(a *types.Account) {
		a.ProxiedVSFShares[depth] = new(big.Int).Add(a.ProxiedVSFShares[depth], delta)
	}); err != nil {
		return err
	}
	if p.Proxy != "" {
		return propagateProxiedShares(c, p.Proxy, delta, depth+1)
	}
	return nil
}

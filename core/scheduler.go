// Package core ties the object store, fork tree, and block log into the
// top-level controller (component F) and the periodic scheduler (component
// D), grounded on the teacher's core.Chain orchestration of its own
// storage/state/evaluator packages.
package core

import (
	"fmt"
	"math/big"
	"sort"

	"gamebankcore/core/evaluator"
	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

// RotateSchedule recomputes the shuffled witness rotation once per round
// (section 4.5): top elected witnesses by vote, plus the configured miner
// and virtual-time runner slots, shuffled deterministically by the current
// head timestamp.
func RotateSchedule(c *evaluator.Context) error {
	elected, err := state.TopWitnessesByVote(c.RW, c.Params.MaxVotedWitnesses)
	if err != nil {
		return err
	}
	slots := make([]string, 0, c.Params.ScheduledWitnessCount)
	types_ := make([]types.WitnessScheduleType, 0, c.Params.ScheduledWitnessCount)
	for _, owner := range elected {
		slots = append(slots, owner)
		types_ = append(types_, types.ScheduleElected)
	}

	miners, err := state.TopMinerWitnesses(c.RW, c.Params.MaxMinerWitnesses)
	if err != nil {
		return err
	}
	for _, owner := range miners {
		slots = append(slots, owner)
		types_ = append(types_, types.ScheduleMiner)
	}

	runnerSlots := c.Params.MaxRunnerWitnesses
	for i := 0; i < runnerSlots; i++ {
		owner, err := pickVirtualRunner(c)
		if err != nil {
			return err
		}
		if owner == "" {
			break
		}
		slots = append(slots, owner)
		types_ = append(types_, types.ScheduleVirtual)
	}

	for len(slots) < c.Params.ScheduledWitnessCount && len(elected) > 0 {
		slots = append(slots, elected[len(slots)%len(elected)])
		types_ = append(types_, types.ScheduleElected)
	}

	shuffleBySeed(slots, types_, c.HeadTime)

	medianFee, medianSize, medianInterest, err := medianWitnessParams(c)
	if err != nil {
		return err
	}

	if err := state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		g.NumPowWitnesses = uint32(len(miners))
	}); err != nil {
		return err
	}

	return state.ModifySchedule(c.RW, func(s *types.WitnessSchedule) {
		s.CurrentShuffledWitnesses = slots
		s.ScheduleTypes = types_
		s.NumScheduled = uint32(len(slots))
		s.NextShuffleBlockNum = c.HeadBlock + uint64(c.Params.ScheduledWitnessCount)
		s.MedianAccountCreationFee = medianFee
		s.MedianMaxBlockSize = medianSize
		s.MedianInterestRateBps = medianInterest
	})
}

// pickVirtualRunner advances the schedule's virtual clock and returns the
// witness with the smallest virtual_scheduled_time, resetting its position
// the way section 4.5's "virtual-round slot" describes.
func pickVirtualRunner(c *evaluator.Context) (string, error) {
	var best string
	var bestTime *big.Int
	err := state.IterateWitnesses(c.RW, func(w types.Witness) (bool, error) {
		if w.SigningKey == "" {
			return true, nil
		}
		t := w.VirtualScheduledTime
		if t == nil {
			t = big.NewInt(0)
		}
		if bestTime == nil || t.Cmp(bestTime) < 0 {
			best, bestTime = w.Owner, t
		}
		return true, nil
	})
	if err != nil || best == "" {
		return "", err
	}
	if err := state.ModifyWitness(c.RW, best, func(w *types.Witness) {
		w.VirtualPosition = big.NewInt(0)
		w.VirtualLastUpdate = big.NewInt(c.HeadTime)
		w.VirtualScheduledTime = new(big.Int).Add(w.VirtualScheduledTime, big.NewInt(1))
	}); err != nil {
		return "", err
	}
	return best, nil
}

// shuffleBySeed performs a deterministic Fisher-Yates shuffle of slots (and
// the parallel types_ slice) keyed off seed, standing in for the original's
// "shuffle using the current timestamp as seed" (section 4.5).
func shuffleBySeed(slots []string, types_ []types.WitnessScheduleType, seed int64) {
	state := uint64(seed)
	next := func() uint64 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return state
	}
	for i := len(slots) - 1; i > 0; i-- {
		j := int(next() % uint64(i+1))
		slots[i], slots[j] = slots[j], slots[i]
		types_[i], types_[j] = types_[j], types_[i]
	}
}

func medianWitnessParams(c *evaluator.Context) (types.Asset, uint32, uint16, error) {
	var fees []*big.Int
	var sizes []uint32
	var rates []uint16
	err := state.IterateWitnesses(c.RW, func(w types.Witness) (bool, error) {
		if w.SigningKey == "" {
			return true, nil
		}
		amt := w.AccountCreationFee.Amount
		if amt == nil {
			amt = big.NewInt(0)
		}
		fees = append(fees, amt)
		sizes = append(sizes, w.MaxBlockSize)
		rates = append(rates, w.InterestRateBps)
		return true, nil
	})
	if err != nil || len(fees) == 0 {
		return types.Zero(types.AssetLiquid), c.Params.MaxBlockSize, 0, err
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i].Cmp(fees[j]) < 0 })
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
	mid := len(fees) / 2
	return types.NewAsset(types.AssetLiquid, fees[mid]), sizes[mid], rates[mid], nil
}

// MedianizeFeed pushes the median of all live witness feeds into the
// feed-history ring every FeedIntervalBlocks, then clamps the resulting
// median so the debt token never exceeds 10% of virtual supply at market
// value (section 4.5).
func MedianizeFeed(c *evaluator.Context) error {
	if c.Params.FeedIntervalBlocks == 0 || c.HeadBlock%c.Params.FeedIntervalBlocks != 0 {
		return nil
	}
	feeds, err := state.LiveFeeds(c.RW, c.HeadTime, c.Params.MaxFeedAgeSeconds)
	if err != nil {
		return err
	}
	if len(feeds) < c.Params.MinFeeds {
		return nil
	}
	median := medianFeed(feeds)

	g, err := state.Global(c.RW)
	if err != nil {
		return err
	}
	median = clampDebtCeiling(median, g)

	return state.ModifyFeedHistory(c.RW, func(fh *types.FeedHistory) {
		windowSize := int(c.Params.FeedHistoryWindowSeconds / 3600)
		if windowSize <= 0 {
			windowSize = 84
		}
		fh.Ring = append(fh.Ring, median)
		if len(fh.Ring) > windowSize {
			fh.Ring = fh.Ring[len(fh.Ring)-windowSize:]
		}
		fh.CurrentMedianHistory = medianFeed(fh.Ring)
	})
}

func medianFeed(feeds []types.PriceFeed) types.PriceFeed {
	if len(feeds) == 0 {
		return types.PriceFeed{Base: types.Zero(types.AssetDebt), Quote: types.Zero(types.AssetLiquid)}
	}
	sorted := append([]types.PriceFeed(nil), feeds...)
	sort.Slice(sorted, func(i, j int) bool {
		lhs := new(big.Int).Mul(sorted[i].Base.Amount, sorted[j].Quote.Amount)
		rhs := new(big.Int).Mul(sorted[j].Base.Amount, sorted[i].Quote.Amount)
		return lhs.Cmp(rhs) < 0
	})
	return sorted[len(sorted)/2]
}

// clampDebtCeiling raises the effective liquid-price of the debt token (by
// scaling the quote side up) if current_debt_supply*median/virtual_supply
// would otherwise exceed 10%, per section 4.5.
func clampDebtCeiling(median types.PriceFeed, g types.GlobalDynamicProperties) types.PriceFeed {
	if median.Quote.Amount == nil || median.Quote.Amount.Sign() == 0 {
		return median
	}
	virtualSupply := g.VirtualSupply.Amount
	if virtualSupply == nil || virtualSupply.Sign() == 0 {
		return median
	}
	debtValue := new(big.Int).Mul(g.CurrentDebtSupply.Amount, median.Base.Amount)
	ceiling := new(big.Int).Mul(virtualSupply, median.Quote.Amount)
	ceiling.Mul(ceiling, big.NewInt(10))
	ceiling.Quo(ceiling, big.NewInt(100))
	if debtValue.Cmp(ceiling) <= 0 {
		return median
	}
	newQuote := new(big.Int).Mul(g.CurrentDebtSupply.Amount, median.Base.Amount)
	newQuote.Mul(newQuote, big.NewInt(100))
	denom := new(big.Int).Mul(virtualSupply, big.NewInt(10))
	if denom.Sign() == 0 {
		return median
	}
	newQuote.Quo(newQuote, denom)
	if newQuote.Sign() <= 0 {
		return median
	}
	return types.PriceFeed{Base: median.Base, Quote: types.NewAsset(types.AssetLiquid, newQuote)}
}

// UpdateVirtualSupply recomputes virtual_supply and the piecewise-linear
// debt_print_rate after every block (section 4.5).
func UpdateVirtualSupply(c *evaluator.Context) error {
	return state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		median := g.CurrentDebtSupply.Amount
		if median == nil {
			median = big.NewInt(0)
		}
		debtValue, err := state.FeedHistory(c.RW)
		var quote, base *big.Int
		if err == nil {
			if debtValue.CurrentMedianHistory.Quote.Amount != nil {
				quote = debtValue.CurrentMedianHistory.Quote.Amount
			}
			if debtValue.CurrentMedianHistory.Base.Amount != nil {
				base = debtValue.CurrentMedianHistory.Base.Amount
			}
		}
		debtAtMarket := new(big.Int)
		if quote != nil && quote.Sign() > 0 && base != nil {
			debtAtMarket = new(big.Int).Mul(g.CurrentDebtSupply.Amount, base)
			debtAtMarket.Quo(debtAtMarket, quote)
		}
		g.VirtualSupply = types.NewAsset(types.AssetLiquid, new(big.Int).Add(g.CurrentSupply.Amount, debtAtMarket))

		if g.VirtualSupply.Amount.Sign() == 0 {
			g.DebtPrintRateBps = 10000
			return
		}
		debtRatioBps := new(big.Int).Mul(debtAtMarket, big.NewInt(10000))
		debtRatioBps.Quo(debtRatioBps, g.VirtualSupply.Amount)
		switch {
		case debtRatioBps.Cmp(big.NewInt(200)) <= 0:
			g.DebtPrintRateBps = 10000
		case debtRatioBps.Cmp(big.NewInt(500)) >= 0:
			g.DebtPrintRateBps = 0
		default:
			span := new(big.Int).Sub(big.NewInt(500), big.NewInt(200))
			progressed := new(big.Int).Sub(debtRatioBps, big.NewInt(200))
			rate := new(big.Int).Sub(span, progressed)
			rate.Mul(rate, big.NewInt(10000))
			rate.Quo(rate, span)
			g.DebtPrintRateBps = uint32(rate.Uint64())
		}
	})
}

// currentInflationRateBps computes the decayed inflation rate: starts at
// InitialInflationRateBps, decays by 1bp every InflationDecayBlocks, floors
// at MinInflationRateBps (section 4.5).
func currentInflationRateBps(c *evaluator.Context) uint32 {
	if c.Params.InflationDecayBlocks == 0 {
		return c.Params.InitialInflationRateBps
	}
	decaySteps := c.HeadBlock / c.Params.InflationDecayBlocks
	rate := int64(c.Params.InitialInflationRateBps) - int64(decaySteps)
	if rate < int64(c.Params.MinInflationRateBps) {
		rate = int64(c.Params.MinInflationRateBps)
	}
	return uint32(rate)
}

// ProcessInflation mints the per-block supply increase and splits it
// between content reward funds, the global vesting fund, and the producing
// witness, scaled by that witness's schedule-slot type (section 4.5).
func ProcessInflation(c *evaluator.Context, producer string, scheduleType types.WitnessScheduleType) error {
	g, err := state.Global(c.RW)
	if err != nil {
		return err
	}
	rateBps := currentInflationRateBps(c)
	yearBlocks := c.Params.YearInBlocks
	if yearBlocks == 0 {
		yearBlocks = 1
	}
	minted := new(big.Int).Mul(g.VirtualSupply.Amount, big.NewInt(int64(rateBps)))
	minted.Quo(minted, big.NewInt(int64(yearBlocks)*10000))
	if minted.Sign() <= 0 {
		return nil
	}

	contentShare := fracOf(minted, c.Params.ContentRewardPercentBps)
	vestingShare := fracOf(minted, c.Params.VestingFundPercentBps)
	producerShare := new(big.Int).Sub(minted, new(big.Int).Add(contentShare, vestingShare))

	switch scheduleType {
	case types.ScheduleVirtual:
		producerShare = fracOf(producerShare, 5000)
	case types.ScheduleMiner:
		producerShare = fracOf(producerShare, 2000)
	}

	if err := distributeToRewardFunds(c, contentShare); err != nil {
		return err
	}

	producerVestingShares := liquidToVestingShares(g, producerShare)
	if producer != "" {
		if err := state.ModifyAccount(c.RW, producer, func(a *types.Account) {
			a.VestingShares.Amount.Add(a.VestingShares.Amount, producerVestingShares)
		}); err != nil {
			return err
		}
		c.Emit(types.Event{Type: types.EventProducerReward, BlockNum: c.HeadBlock, TxIndex: -1,
			Fields: fmt.Sprintf(`{"producer":%q,"vesting_shares":%q}`, producer, types.NewAsset(types.AssetVesting, producerVestingShares).String())})
	}

	return state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		g.CurrentSupply.Amount.Add(g.CurrentSupply.Amount, minted)
		g.TotalVestingFund.Amount.Add(g.TotalVestingFund.Amount, new(big.Int).Add(vestingShare, producerShare))
		g.TotalVestingShares.Amount.Add(g.TotalVestingShares.Amount, producerVestingShares)
	})
}

func fracOf(amount *big.Int, bps uint32) *big.Int {
	r := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return r.Quo(r, big.NewInt(10000))
}

func liquidToVestingShares(g types.GlobalDynamicProperties, liquid *big.Int) *big.Int {
	fund := g.TotalVestingFund.Amount
	shares := g.TotalVestingShares.Amount
	if fund == nil || fund.Sign() == 0 || shares == nil || shares.Sign() == 0 {
		return new(big.Int).Set(liquid)
	}
	out := new(big.Int).Mul(liquid, shares)
	return out.Quo(out, fund)
}

func distributeToRewardFunds(c *evaluator.Context, total *big.Int) error {
	var funds []types.RewardFund
	if err := state.IterateRewardFunds(c.RW, func(f types.RewardFund) (bool, error) {
		funds = append(funds, f)
		return true, nil
	}); err != nil {
		return err
	}
	if len(funds) == 0 {
		return state.InitRewardFund(c.RW, types.RewardFund{
			Name:            "post",
			RewardBalance:   types.NewAsset(types.AssetLiquid, total),
			RecentClaims:    big.NewInt(0),
			LastUpdateUnix:  c.HeadTime,
			ContentConstant: big.NewInt(2000000000000),
			PercentCuration: 2500,
			Quadratic:       true,
		})
	}
	share := new(big.Int).Quo(total, big.NewInt(int64(len(funds))))
	for _, f := range funds {
		if err := state.ModifyRewardFund(c.RW, f.Name, func(rf *types.RewardFund) {
			rf.RewardBalance.Amount.Add(rf.RewardBalance.Amount, share)
		}); err != nil {
			return err
		}
	}
	return nil
}

// rewardCurve applies the fund's configured payout curve to net_rshares
// (section 4.5 / original_source's util/reward.hpp): quadratic squares the
// rshares against a content-constant offset, linear passes them through.
func rewardCurve(netRshares, contentConstant *big.Int, quadratic bool) *big.Int {
	if netRshares.Sign() <= 0 {
		return big.NewInt(0)
	}
	if !quadratic {
		return new(big.Int).Set(netRshares)
	}
	sum := new(big.Int).Add(netRshares, contentConstant)
	out := new(big.Int).Mul(netRshares, netRshares)
	if sum.Sign() == 0 {
		return big.NewInt(0)
	}
	return out.Quo(out, sum)
}

const dustThreshold = 20 // rshares below this many units, scaled, are forfeited

// ProcessCashouts pays out every comment whose cashout_time has arrived,
// splitting the fund's liquid payout between curators (pro-rata by
// recorded vote weight), beneficiaries, and the author (half liquid, half
// vesting), then archives the comment by setting cashout_time to the
// far-future sentinel (section 4.5).
func ProcessCashouts(c *evaluator.Context) error {
	due, err := state.DueCashouts(c.RW, c.HeadTime, 100)
	if err != nil {
		return err
	}
	for _, cm := range due {
		if err := processOneCashout(c, cm); err != nil {
			return err
		}
	}
	return nil
}

func processOneCashout(c *evaluator.Context, cm types.Comment) error {
	fund, ok, err := state.GetRewardFund(c.RW, "post")
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	elapsed := c.HeadTime - fund.LastUpdateUnix
	if elapsed < 0 {
		elapsed = 0
	}
	decay := new(big.Int).Mul(fund.RecentClaims, big.NewInt(elapsed))
	decay.Quo(decay, big.NewInt(15*24*3600))
	claims := new(big.Int).Sub(fund.RecentClaims, decay)
	if claims.Sign() < 0 {
		claims = big.NewInt(0)
	}

	share := rewardCurve(cm.NetRshares, fund.ContentConstant, fund.Quadratic)
	claims.Add(claims, share)

	var payout *big.Int
	if claims.Sign() > 0 && share.Sign() > 0 {
		payout = new(big.Int).Mul(fund.RewardBalance.Amount, share)
		payout.Quo(payout, claims)
	} else {
		payout = big.NewInt(0)
	}
	if cm.MaxAcceptedPayout.Amount != nil && payout.Cmp(cm.MaxAcceptedPayout.Amount) > 0 {
		payout = new(big.Int).Set(cm.MaxAcceptedPayout.Amount)
	}

	if err := state.ModifyRewardFund(c.RW, fund.Name, func(rf *types.RewardFund) {
		rf.RecentClaims = claims
		rf.LastUpdateUnix = c.HeadTime
		rf.RewardBalance.Amount.Sub(rf.RewardBalance.Amount, payout)
	}); err != nil {
		return err
	}

	if payout.Sign() > 0 {
		curationPool := fracOf(payout, uint32(cm.PercentCuration))
		authorPool := new(big.Int).Sub(payout, curationPool)

		if err := payCurators(c, cm, curationPool); err != nil {
			return err
		}
		if err := payAuthorAndBeneficiaries(c, cm, authorPool); err != nil {
			return err
		}
	}

	return state.ModifyComment(c.RW, cm.Author, cm.Permlink, func(m *types.Comment) {
		m.TotalPayoutValue.Amount.Add(m.TotalPayoutValue.Amount, payout)
		m.NetRshares = big.NewInt(0)
		m.AbsRshares = big.NewInt(0)
		m.TotalVoteWeight = big.NewInt(0)
		m.CashoutTimeUnix = 1 << 62
	})
}

func payCurators(c *evaluator.Context, cm types.Comment, pool *big.Int) error {
	if pool.Sign() <= 0 || cm.TotalVoteWeight == nil || cm.TotalVoteWeight.Sign() <= 0 {
		return nil
	}
	votes, err := state.VotesForComment(c.RW, cm.Author, cm.Permlink)
	if err != nil {
		return err
	}
	for _, v := range votes {
		if v.VoteWeightForCuration == nil || v.VoteWeightForCuration.Sign() <= 0 {
			continue
		}
		share := new(big.Int).Mul(pool, v.VoteWeightForCuration)
		share.Quo(share, cm.TotalVoteWeight)
		if share.Cmp(big.NewInt(dustThreshold)) < 0 {
			continue
		}
		g, err := state.Global(c.RW)
		if err != nil {
			return err
		}
		shares := liquidToVestingShares(g, share)
		if err := state.ModifyAccount(c.RW, v.Voter, func(a *types.Account) {
			a.RewardVestingShares.Amount.Add(a.RewardVestingShares.Amount, shares)
			a.RewardVestingBalance.Amount.Add(a.RewardVestingBalance.Amount, share)
		}); err != nil {
			return err
		}
		if err := state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
			g.PendingRewardedVestingShares.Amount.Add(g.PendingRewardedVestingShares.Amount, shares)
			g.PendingRewardedVestingBalance.Amount.Add(g.PendingRewardedVestingBalance.Amount, share)
		}); err != nil {
			return err
		}
		c.Emit(types.Event{Type: types.EventCurationReward, BlockNum: c.HeadBlock, TxIndex: -1,
			Fields: fmt.Sprintf(`{"curator":%q,"author":%q,"permlink":%q,"reward":%q}`, v.Voter, cm.Author, cm.Permlink, types.NewAsset(types.AssetLiquid, share).String())})
	}
	return nil
}

func payAuthorAndBeneficiaries(c *evaluator.Context, cm types.Comment, pool *big.Int) error {
	if pool.Sign() <= 0 {
		return nil
	}
	remaining := new(big.Int).Set(pool)
	for _, b := range cm.Beneficiaries {
		share := fracOf(pool, uint32(b.Percent))
		if share.Sign() <= 0 {
			continue
		}
		if err := creditAuthorReward(c, b.Account, share); err != nil {
			return err
		}
		remaining.Sub(remaining, share)
		c.Emit(types.Event{Type: types.EventCommentBenefactorReward, BlockNum: c.HeadBlock, TxIndex: -1,
			Fields: fmt.Sprintf(`{"benefactor":%q,"author":%q,"permlink":%q,"reward":%q}`, b.Account, cm.Author, cm.Permlink, types.NewAsset(types.AssetLiquid, share).String())})
	}
	if remaining.Sign() <= 0 {
		return nil
	}
	if err := creditAuthorReward(c, cm.Author, remaining); err != nil {
		return err
	}
	c.Emit(types.Event{Type: types.EventAuthorReward, BlockNum: c.HeadBlock, TxIndex: -1,
		Fields: fmt.Sprintf(`{"author":%q,"permlink":%q,"reward":%q}`, cm.Author, cm.Permlink, types.NewAsset(types.AssetLiquid, remaining).String())})
	return nil
}

// creditAuthorReward splits a liquid reward amount half into the reward
// liquid bucket and half into vesting shares, per section 4.5's "author's
// residual half becomes vesting ... half becomes liquid".
func creditAuthorReward(c *evaluator.Context, account string, amount *big.Int) error {
	if amount.Cmp(big.NewInt(dustThreshold)) < 0 {
		return nil
	}
	liquidHalf := new(big.Int).Quo(amount, big.NewInt(2))
	vestingHalf := new(big.Int).Sub(amount, liquidHalf)

	g, err := state.Global(c.RW)
	if err != nil {
		return err
	}
	shares := liquidToVestingShares(g, vestingHalf)

	if err := state.ModifyAccount(c.RW, account, func(a *types.Account) {
		a.RewardLiquidBalance.Amount.Add(a.RewardLiquidBalance.Amount, liquidHalf)
		a.RewardVestingShares.Amount.Add(a.RewardVestingShares.Amount, shares)
		a.RewardVestingBalance.Amount.Add(a.RewardVestingBalance.Amount, vestingHalf)
	}); err != nil {
		return err
	}
	return state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		g.PendingRewardedVestingShares.Amount.Add(g.PendingRewardedVestingShares.Amount, shares)
		g.PendingRewardedVestingBalance.Amount.Add(g.PendingRewardedVestingBalance.Amount, vestingHalf)
	})
}

// ProcessVestingWithdrawals pays out one weekly power-down installment for
// every account whose next_vesting_withdrawal has arrived, splitting the
// payment across configured withdraw routes (section 4.5).
func ProcessVestingWithdrawals(c *evaluator.Context) error {
	due, err := state.DueVestingWithdrawals(c.RW, c.HeadTime, 100)
	if err != nil {
		return err
	}
	for _, name := range due {
		if err := processOneVestingWithdrawal(c, name); err != nil {
			return err
		}
	}
	return nil
}

func processOneVestingWithdrawal(c *evaluator.Context, name string) error {
	a, err := state.MustGetAccount(c.RW, name)
	if err != nil {
		return err
	}
	withdrawNow := new(big.Int).Set(a.VestingWithdrawRate.Amount)
	if withdrawNow.Cmp(a.VestingShares.Amount) > 0 {
		withdrawNow = new(big.Int).Set(a.VestingShares.Amount)
	}
	if withdrawNow.Sign() <= 0 {
		return state.ModifyAccount(c.RW, name, func(acct *types.Account) {
			acct.NextVestingWithdrawal = 0
			acct.VestingWithdrawRate = types.Zero(types.AssetVesting)
		})
	}

	routes, err := state.WithdrawRoutesFor(c.RW, name)
	if err != nil {
		return err
	}
	priorGlobal, err := state.Global(c.RW)
	if err != nil {
		return err
	}

	remaining := new(big.Int).Set(withdrawNow)
	for _, r := range routes {
		portion := new(big.Int).Mul(withdrawNow, big.NewInt(int64(r.PercentBps)))
		portion.Quo(portion, big.NewInt(10000))
		if portion.Sign() <= 0 {
			continue
		}
		remaining.Sub(remaining, portion)
		if r.AutoVest {
			if err := state.ModifyAccount(c.RW, r.To, func(acct *types.Account) {
				acct.VestingShares.Amount.Add(acct.VestingShares.Amount, portion)
			}); err != nil {
				return err
			}
		} else {
			liquid := vestingSharesToLiquid(priorGlobal, portion)
			if err := state.ModifyAccount(c.RW, r.To, func(acct *types.Account) {
				acct.Balance.Amount.Add(acct.Balance.Amount, liquid)
			}); err != nil {
				return err
			}
		}
	}
	if remaining.Sign() > 0 {
		liquid := vestingSharesToLiquid(priorGlobal, remaining)
		if err := state.ModifyAccount(c.RW, name, func(acct *types.Account) {
			acct.Balance.Amount.Add(acct.Balance.Amount, liquid)
		}); err != nil {
			return err
		}
	}

	if err := state.ModifyAccount(c.RW, name, func(acct *types.Account) {
		acct.VestingShares.Amount.Sub(acct.VestingShares.Amount, withdrawNow)
		acct.Withdrawn.Add(acct.Withdrawn, withdrawNow)
		if acct.Withdrawn.Cmp(acct.ToWithdraw) >= 0 || acct.VestingShares.Amount.Sign() <= 0 {
			acct.NextVestingWithdrawal = 0
			acct.VestingWithdrawRate = types.Zero(types.AssetVesting)
		} else {
			acct.NextVestingWithdrawal = c.HeadTime + c.Params.PowerDownWeekSeconds
		}
	}); err != nil {
		return err
	}
	if err := state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		g.TotalVestingShares.Amount.Sub(g.TotalVestingShares.Amount, withdrawNow)
		g.TotalVestingFund.Amount.Sub(g.TotalVestingFund.Amount, vestingSharesToLiquid(priorGlobal, withdrawNow))
	}); err != nil {
		return err
	}
	c.Emit(types.Event{Type: types.EventFillVestingWithdraw, BlockNum: c.HeadBlock, TxIndex: -1,
		Fields: fmt.Sprintf(`{"account":%q,"withdrawn":%q}`, name, types.NewAsset(types.AssetVesting, withdrawNow).String())})
	return nil
}

func vestingSharesToLiquid(g types.GlobalDynamicProperties, shares *big.Int) *big.Int {
	total := g.TotalVestingShares.Amount
	fund := g.TotalVestingFund.Amount
	if total == nil || total.Sign() == 0 {
		return new(big.Int).Set(shares)
	}
	out := new(big.Int).Mul(shares, fund)
	return out.Quo(out, total)
}

// ProcessConversions completes every debt->liquid conversion whose delay has
// elapsed, converting at the current median feed (section 4.5).
func ProcessConversions(c *evaluator.Context) error {
	due, err := state.DueConvertRequests(c.RW, c.HeadTime, 100)
	if err != nil {
		return err
	}
	fh, err := state.FeedHistory(c.RW)
	if err != nil {
		return err
	}
	median := fh.CurrentMedianHistory
	for _, req := range due {
		var liquid *big.Int
		if median.Quote.Amount != nil && median.Quote.Amount.Sign() > 0 {
			liquid = new(big.Int).Mul(req.Amount.Amount, median.Base.Amount)
			liquid.Quo(liquid, median.Quote.Amount)
		} else {
			liquid = new(big.Int).Set(req.Amount.Amount)
		}
		if err := state.ModifyAccount(c.RW, req.Owner, func(a *types.Account) {
			a.Balance.Amount.Add(a.Balance.Amount, liquid)
		}); err != nil {
			return err
		}
		if err := state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
			g.CurrentDebtSupply.Amount.Sub(g.CurrentDebtSupply.Amount, req.Amount.Amount)
			g.CurrentSupply.Amount.Add(g.CurrentSupply.Amount, liquid)
		}); err != nil {
			return err
		}
		if err := state.RemoveConvertRequest(c.RW, req.Owner, req.RequestID); err != nil {
			return err
		}
		c.Emit(types.Event{Type: types.EventFillConvertRequest, BlockNum: c.HeadBlock, TxIndex: -1,
			Fields: fmt.Sprintf(`{"owner":%q,"request_id":%d,"amount_in":%q,"amount_out":%q}`, req.Owner, req.RequestID, req.Amount.String(), types.NewAsset(types.AssetLiquid, liquid).String())})
	}
	return nil
}

// ProcessSavingsWithdrawals completes every matured transfer-from-savings
// request.
func ProcessSavingsWithdrawals(c *evaluator.Context) error {
	due, err := state.DueSavingsWithdrawals(c.RW, c.HeadTime, 100)
	if err != nil {
		return err
	}
	for _, w := range due {
		if err := state.ModifyAccount(c.RW, w.To, func(a *types.Account) {
			if w.Amount.Kind == types.AssetLiquid {
				a.Balance.Amount.Add(a.Balance.Amount, w.Amount.Amount)
			} else {
				a.DebtBalance.Amount.Add(a.DebtBalance.Amount, w.Amount.Amount)
			}
		}); err != nil {
			return err
		}
		if err := state.RemoveSavingsWithdrawal(c.RW, w.From, w.RequestID); err != nil {
			return err
		}
		c.Emit(types.Event{Type: types.EventFillTransferFromSavings, BlockNum: c.HeadBlock, TxIndex: -1,
			Fields: fmt.Sprintf(`{"from":%q,"to":%q,"amount":%q}`, w.From, w.To, w.Amount.String())})
	}
	return nil
}

// ProcessCrowdfundingExpiry finalizes every crowdfunding whose expiration
// has passed: refunding investors if the target was not met, or crediting
// the originator if it was (section 4.5).
func ProcessCrowdfundingExpiry(c *evaluator.Context) error {
	due, err := state.ExpiredCrowdfundings(c.RW, c.HeadTime, 50)
	if err != nil {
		return err
	}
	for _, cf := range due {
		successful := cf.Raised.Amount.Cmp(cf.Target.Amount) >= 0
		if successful {
			if err := state.ModifyAccount(c.RW, cf.Originator, func(a *types.Account) {
				a.Balance.Amount.Add(a.Balance.Amount, cf.Raised.Amount)
			}); err != nil {
				return err
			}
			c.Emit(types.Event{Type: types.EventCrowdfundingFinished, BlockNum: c.HeadBlock, TxIndex: -1,
				Fields: fmt.Sprintf(`{"originator":%q,"fund_id":%d,"raised":%q}`, cf.Originator, cf.FundID, cf.Raised.String())})
		} else {
			investors, err := state.InvestorsIn(c.RW, cf.Originator, cf.FundID)
			if err != nil {
				return err
			}
			for _, inv := range investors {
				if err := state.ModifyAccount(c.RW, inv.Investor, func(a *types.Account) {
					a.Balance.Amount.Add(a.Balance.Amount, inv.Amount.Amount)
				}); err != nil {
					return err
				}
				if err := state.RemoveCrowdfundingInvest(c.RW, cf.Originator, cf.FundID, inv.Investor); err != nil {
					return err
				}
			}
			c.Emit(types.Event{Type: types.EventCrowdfundingRefunded, BlockNum: c.HeadBlock, TxIndex: -1,
				Fields: fmt.Sprintf(`{"originator":%q,"fund_id":%d,"raised":%q}`, cf.Originator, cf.FundID, cf.Raised.String())})
		}
		if err := state.ModifyCrowdfunding(c.RW, cf.Originator, cf.FundID, func(f *types.Crowdfunding) {
			f.Finished = true
			f.Successful = successful
		}); err != nil {
			return err
		}
	}
	return nil
}

// ExpireListings clears non-fungible sale listings past their TTL, a
// cleanup pass not named with a duration in original_source so it is driven
// by the configurable NonFungibleListingTTLSeconds (section 4.4 step 10).
func ExpireListings(c *evaluator.Context) error {
	due, err := state.ExpiredListings(c.RW, c.HeadTime, 100)
	if err != nil {
		return err
	}
	for _, l := range due {
		if err := state.CancelListing(c.RW, l.Owner, l.FundID); err != nil {
			return err
		}
	}
	return nil
}

// ExpireOrders cancels resting limit orders past their expiration,
// refunding the unfilled balance (section 4.4 step 10).
func ExpireOrders(c *evaluator.Context) error {
	due, err := state.ExpiredOrders(c.RW, c.HeadTime, 100)
	if err != nil {
		return err
	}
	for _, o := range due {
		if err := state.ModifyAccount(c.RW, o.Seller, func(a *types.Account) {
			if o.ForSale.Kind == types.AssetLiquid {
				a.Balance.Amount.Add(a.Balance.Amount, o.ForSale.Amount)
			} else {
				a.DebtBalance.Amount.Add(a.DebtBalance.Amount, o.ForSale.Amount)
			}
		}); err != nil {
			return err
		}
		if err := state.RemoveLimitOrder(c.RW, o.Seller, o.OrderID); err != nil {
			return err
		}
	}
	return nil
}

// ExpireDelegations returns vesting shares whose delayed decrease has
// matured (section 4.4 step 10).
func ExpireDelegations(c *evaluator.Context) error {
	due, err := state.DueDelegationExpirations(c.RW, c.HeadTime)
	if err != nil {
		return err
	}
	for _, e := range due {
		if err := state.ModifyAccount(c.RW, e.Delegator, func(a *types.Account) {
			a.VestingShares.Amount.Add(a.VestingShares.Amount, e.VestingShares.Amount)
		}); err != nil {
			return err
		}
		if err := state.RemoveDelegationExpiration(c.RW, e.ID); err != nil {
			return err
		}
		c.Emit(types.Event{Type: types.EventReturnVestingDelegation, BlockNum: c.HeadBlock, TxIndex: -1,
			Fields: fmt.Sprintf(`{"delegator":%q,"vesting_shares":%q}`, e.Delegator, e.VestingShares.String())})
	}
	return nil
}

// ClearNullAccountBalances burns any balance accumulated in the reserved
// "null" account, the chain's sink for permanently destroyed tokens
// (section 4.4 step 14).
func ClearNullAccountBalances(c *evaluator.Context) error {
	const nullAccount = "null"
	a, ok, err := state.GetAccount(c.RW, nullAccount)
	if err != nil || !ok {
		return err
	}
	if a.Balance.IsZero() && a.DebtBalance.IsZero() && a.VestingShares.IsZero() {
		return nil
	}
	burned := new(big.Int).Set(a.Balance.Amount)
	debtBurned := new(big.Int).Set(a.DebtBalance.Amount)
	if err := state.ModifyAccount(c.RW, nullAccount, func(acct *types.Account) {
		acct.Balance.Amount.SetInt64(0)
		acct.DebtBalance.Amount.SetInt64(0)
	}); err != nil {
		return err
	}
	return state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		g.CurrentSupply.Amount.Sub(g.CurrentSupply.Amount, burned)
		g.CurrentDebtSupply.Amount.Sub(g.CurrentDebtSupply.Amount, debtBurned)
	})
}

// PayLiquidityReward pays the top market makers/takers their pro-rated
// share of a fixed liquidity pool once every LiquidityRewardIntervalBlocks,
// the "pay liquidity reward (if window boundary)" step of section 4.4/4.5.
func PayLiquidityReward(c *evaluator.Context) error {
	if c.Params.LiquidityRewardIntervalBlocks == 0 || c.HeadBlock%c.Params.LiquidityRewardIntervalBlocks != 0 {
		return nil
	}
	var balances []types.LiquidityRewardBalance
	if err := state.IterateLiquidityRewardBalances(c.RW, func(b types.LiquidityRewardBalance) (bool, error) {
		balances = append(balances, b)
		return true, nil
	}); err != nil {
		return err
	}
	if len(balances) == 0 {
		return nil
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Weight.Cmp(balances[j].Weight) > 0 })
	if len(balances) > 20 {
		balances = balances[:20]
	}
	pool, ok, err := state.GetRewardFund(c.RW, "liquidity")
	if err != nil {
		return err
	}
	if !ok || pool.RewardBalance.Amount.Sign() <= 0 {
		return nil
	}
	totalWeight := big.NewInt(0)
	for _, b := range balances {
		totalWeight.Add(totalWeight, b.Weight)
	}
	if totalWeight.Sign() <= 0 {
		return nil
	}
	for _, b := range balances {
		share := new(big.Int).Mul(pool.RewardBalance.Amount, b.Weight)
		share.Quo(share, totalWeight)
		if share.Sign() <= 0 {
			continue
		}
		if err := state.ModifyAccount(c.RW, b.Account, func(a *types.Account) {
			a.Balance.Amount.Add(a.Balance.Amount, share)
		}); err != nil {
			return err
		}
		if err := state.RemoveLiquidityRewardBalance(c.RW, b.Account); err != nil {
			return err
		}
		c.Emit(types.Event{Type: types.EventLiquidityReward, BlockNum: c.HeadBlock, TxIndex: -1,
			Fields: fmt.Sprintf(`{"account":%q,"reward":%q}`, b.Account, types.NewAsset(types.AssetLiquid, share).String())})
	}
	return state.ModifyRewardFund(c.RW, "liquidity", func(rf *types.RewardFund) {
		rf.RewardBalance.Amount.SetInt64(0)
	})
}

// UpdateParticipation folds this block's producer result into the 128-bit
// recent_slots_filled bitmap and recomputes participation_count, per
// section 4.4 step 6 and 4.5's "participation_rate = popcount(...)/128".
func UpdateParticipation(c *evaluator.Context, missedSlot bool) error {
	return state.ModifyGlobal(c.RW, func(g *types.GlobalDynamicProperties) {
		if g.RecentSlotsFilled == nil {
			g.RecentSlotsFilled = big.NewInt(0)
		}
		bitmap := new(big.Int).Lsh(g.RecentSlotsFilled, 1)
		mask := new(big.Int).Lsh(big.NewInt(1), 128)
		mask.Sub(mask, big.NewInt(1))
		bitmap.And(bitmap, mask)
		if !missedSlot {
			bitmap.SetBit(bitmap, 0, 1)
		}
		g.RecentSlotsFilled = bitmap
		g.ParticipationCount = uint8(popcount128(bitmap))
	})
}

func popcount128(v *big.Int) int {
	count := 0
	for _, w := range v.Bits() {
		for w != 0 {
			count += int(w & 1)
			w >>= 1
		}
	}
	return count
}

// ParticipationRateBps reports the current participation rate in basis
// points, used to gate block production per section 4.5.
func ParticipationRateBps(g types.GlobalDynamicProperties) uint32 {
	return uint32(g.ParticipationCount) * 10000 / 128
}

// ProcessDelayedRequests advances account-recovery, change-recovery-account,
// and decline-voting-rights requests whose effective time has arrived
// (section 4.4 step 16).
func ProcessDelayedRequests(c *evaluator.Context) error {
	changeReqs, err := state.DueChangeRecoveryAccountRequests(c.RW, c.HeadTime)
	if err != nil {
		return err
	}
	for _, r := range changeReqs {
		if err := state.ModifyAccount(c.RW, r.AccountToRecover, func(a *types.Account) {
			a.RecoveryAccount = r.NewRecoveryAccount
		}); err != nil {
			return err
		}
		if err := state.RemoveChangeRecoveryAccountRequest(c.RW, r.AccountToRecover); err != nil {
			return err
		}
	}

	declineReqs, err := state.DueDeclineVotingRightsRequests(c.RW, c.HeadTime)
	if err != nil {
		return err
	}
	for _, r := range declineReqs {
		if err := state.ModifyAccount(c.RW, r.Account, func(a *types.Account) {
			a.CanVote = false
			a.Proxy = ""
		}); err != nil {
			return err
		}
		if err := state.RemoveDeclineVotingRightsRequest(c.RW, r.Account); err != nil {
			return err
		}
	}
	return nil
}

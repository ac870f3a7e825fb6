package evaluator

import (
	"fmt"
	"math/big"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
)

const maxCommentDepth = 0xffff

func evalComment(c *Context, op *types.CommentOp) error {
	if _, err := requireAccount(c, op.Author); err != nil {
		return err
	}
	_, exists, err := state.GetComment(c.RW, op.Author, op.Permlink)
	if err != nil {
		return err
	}
	isRoot := op.ParentAuthor == ""
	if exists {
		return state.ModifyComment(c.RW, op.Author, op.Permlink, func(cm *types.Comment) {
			cm.LastUpdateUnix = c.HeadTime
			if op.Title != "" {
				cm.Title = op.Title
			}
			cm.Body = op.Body
			cm.JSONMetadata = op.JSONMetadata
		})
	}
	var rootAuthor, rootPermlink string
	var depth uint16
	if isRoot {
		rootAuthor, rootPermlink, depth = op.Author, op.Permlink, 0
	} else {
		if _, err := requireAccount(c, op.ParentAuthor); err != nil {
			return err
		}
		parent, ok, err := state.GetComment(c.RW, op.ParentAuthor, op.ParentPermlink)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("evaluator: comment: parent %s/%s does not exist", op.ParentAuthor, op.ParentPermlink)
		}
		if parent.Depth >= maxCommentDepth {
			return fmt.Errorf("evaluator: comment: max comment depth exceeded")
		}
		rootAuthor, rootPermlink, depth = parent.RootAuthor, parent.RootPermlink, parent.Depth+1
		if err := state.ModifyComment(c.RW, op.ParentAuthor, op.ParentPermlink, func(cm *types.Comment) {
			cm.Children++
			cm.ActiveUnix = c.HeadTime
		}); err != nil {
			return err
		}
	}
	return state.PutComment(c.RW, types.Comment{
		Author:               op.Author,
		Permlink:             op.Permlink,
		ParentAuthor:         op.ParentAuthor,
		ParentPermlink:       op.ParentPermlink,
		RootAuthor:           rootAuthor,
		RootPermlink:         rootPermlink,
		Depth:                depth,
		CreatedUnix:          c.HeadTime,
		LastUpdateUnix:       c.HeadTime,
		CashoutTimeUnix:      c.HeadTime + c.Params.CashoutWindowSeconds,
		ActiveUnix:           c.HeadTime,
		NetRshares:           big.NewInt(0),
		AbsRshares:           big.NewInt(0),
		VoteRshares:          big.NewInt(0),
		ChildrenRshares2:     big.NewInt(0),
		TotalVoteWeight:      big.NewInt(0),
		MaxAcceptedPayout:    types.NewAsset(types.AssetDebt, big.NewInt(1_000_000_000_00000)),
		PercentCuration:      10000,
		AllowVotes:           true,
		AllowCurationRewards: true,
		RewardWeight:         10000,
		TotalPayoutValue:     types.Zero(types.AssetDebt),
		CuratorPayoutValue:   types.Zero(types.AssetDebt),
		AuthorRewards:        big.NewInt(0),
		Title:                op.Title,
		Body:                 op.Body,
		JSONMetadata:         op.JSONMetadata,
	})
}

func evalDeleteComment(c *Context, op *types.DeleteCommentOp) error {
	cm, ok, err := state.GetComment(c.RW, op.Author, op.Permlink)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: delete_comment: %s/%s does not exist", op.Author, op.Permlink)
	}
	if cm.Children > 0 {
		return fmt.Errorf("evaluator: delete_comment: cannot delete a comment with replies")
	}
	if cm.NetRshares.Sign() > 0 {
		return fmt.Errorf("evaluator: delete_comment: cannot delete a comment with positive rshares")
	}
	return state.RemoveComment(c.RW, op.Author, op.Permlink)
}

func evalCommentOptions(c *Context, op *types.CommentOptionsOp) error {
	_, ok, err := state.GetComment(c.RW, op.Author, op.Permlink)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: comment_options: %s/%s does not exist", op.Author, op.Permlink)
	}
	var total uint32
	for _, b := range op.Beneficiaries {
		if _, err := requireAccount(c, b.Account); err != nil {
			return err
		}
		total += uint32(b.Percent)
	}
	if total > 10000 {
		return fmt.Errorf("evaluator: comment_options: beneficiary percentages exceed 100%%")
	}
	return state.ModifyComment(c.RW, op.Author, op.Permlink, func(cm *types.Comment) {
		if cm.NetVotes > 0 || cm.Children > 0 {
			// Tightening-only once a comment has activity: payout ceiling can
			// only move down, curation/vote flags cannot be re-enabled.
			if op.MaxAcceptedPayout.Amount.Cmp(cm.MaxAcceptedPayout.Amount) < 0 {
				cm.MaxAcceptedPayout = op.MaxAcceptedPayout
			}
			return
		}
		cm.MaxAcceptedPayout = op.MaxAcceptedPayout
		cm.PercentCuration = op.PercentCuration
		cm.AllowVotes = op.AllowVotes
		cm.AllowCurationRewards = op.AllowCurationRewards
		cm.Beneficiaries = op.Beneficiaries
	})
}

// votingPowerAfterRegen applies linear regeneration (section 4.4's voting
// power model: +10000 basis points per regenSeconds, i.e. +2000 per elapsed
// day with the five-day default, capped at 10000) to an
// account's stored voting power as of lastVoteUnix.
func votingPowerAfterRegen(storedPower int32, lastVoteUnix, now, regenSeconds int64) int32 {
	if regenSeconds <= 0 {
		regenSeconds = 5 * 24 * 3600
	}
	elapsed := now - lastVoteUnix
	if elapsed <= 0 {
		return storedPower
	}
	regen := int64(10000) * elapsed / regenSeconds
	power := int64(storedPower) + regen
	if power > 10000 {
		power = 10000
	}
	return int32(power)
}

func evalVote(c *Context, op *types.VoteOp) error {
	voter, err := requireAccount(c, op.Voter)
	if err != nil {
		return err
	}
	if _, err := requireAccount(c, op.Author); err != nil {
		return err
	}
	cm, ok, err := state.GetComment(c.RW, op.Author, op.Permlink)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evaluator: vote: %s/%s does not exist", op.Author, op.Permlink)
	}
	if !cm.AllowVotes {
		return fmt.Errorf("evaluator: vote: votes disabled on %s/%s", op.Author, op.Permlink)
	}
	if c.HeadTime-voter.LastVoteTime < c.Params.MinVoteIntervalSeconds {
		return fmt.Errorf("evaluator: vote: %s is voting too frequently", op.Voter)
	}
	power := votingPowerAfterRegen(int32(voter.VotingPower), voter.LastVoteTime, c.HeadTime, c.Params.VoteRegenerationSeconds)

	existing, hadVote, err := state.GetVote(c.RW, op.Voter, op.Author, op.Permlink)
	if err != nil {
		return err
	}
	usedPower := int32(op.Weight)
	if usedPower < 0 {
		usedPower = -usedPower
	}
	// Reverse-auction: votes cast within the window after posting have their
	// effective power linearly reduced toward zero at post time, rewarding
	// patience (section 4.4).
	absoluteWindow := c.Params.ReverseAuctionWindowSeconds
	elapsedSincePost := c.HeadTime - cm.CreatedUnix
	auctionScale := int64(10000)
	if absoluteWindow > 0 && elapsedSincePost < absoluteWindow {
		auctionScale = 10000 * elapsedSincePost / absoluteWindow
	}
	absRshares := effectiveStake(voter)
	rshares := new(big.Int).Mul(absRshares, big.NewInt(int64(power)*int64(usedPower)))
	rshares.Quo(rshares, big.NewInt(10000*10000))
	rshares.Mul(rshares, big.NewInt(auctionScale))
	rshares.Quo(rshares, big.NewInt(10000))
	if op.Weight < 0 {
		rshares.Neg(rshares)
	}

	newPower := power - int32(int64(power)*int64(usedPower)/10000*20/100)
	if newPower < 0 {
		newPower = 0
	}

	if err := state.ModifyAccount(c.RW, op.Voter, func(a *types.Account) {
		a.VotingPower = uint16(newPower)
		a.LastVoteTime = c.HeadTime
	}); err != nil {
		return err
	}

	delta := new(big.Int).Sub(rshares, zeroAmount())
	if hadVote {
		delta = new(big.Int).Sub(rshares, existing.Rshares)
	}
	curationWeight := new(big.Int).Abs(delta)

	if err := state.ModifyComment(c.RW, op.Author, op.Permlink, func(cm *types.Comment) {
		cm.NetRshares.Add(cm.NetRshares, delta)
		cm.AbsRshares.Add(cm.AbsRshares, new(big.Int).Abs(delta))
		cm.TotalVoteWeight.Add(cm.TotalVoteWeight, curationWeight)
		cm.ActiveUnix = c.HeadTime
		if !hadVote {
			cm.NetVotes++
		}
	}); err != nil {
		return err
	}

	return state.PutVote(c.RW, types.CommentVote{
		Voter:                 op.Voter,
		Author:                op.Author,
		Permlink:              op.Permlink,
		Weight:                op.Weight,
		Rshares:               rshares,
		VoteWeightForCuration: curationWeight,
		LastUpdateUnix:        c.HeadTime,
		NumChanges:            existing.NumChanges + 1,
	})
}

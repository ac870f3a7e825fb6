package core

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gamebankcore/config"
	"gamebankcore/contract"
	"gamebankcore/core/blocklog"
	"gamebankcore/core/evaluator"
	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/crypto"
	"gamebankcore/objectstore"
	"gamebankcore/storage"
)

// newScenarioController bootstraps a controller with an arbitrary account
// and witness set under the given scheduled producers, for scenarios that need
// more than newTestController's fixed single "alice" genesis.
func newScenarioController(t *testing.T, accounts []types.Account, witnesses []types.Witness, scheduled []string) *Controller {
	t.Helper()
	dir := t.TempDir()
	log, err := blocklog.Open(filepath.Join(dir, "blocks.log"), filepath.Join(dir, "blocks.idx"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	store := objectstore.NewStore(storage.NewMemDB())
	params := config.DefaultParams()
	var chainID [32]byte
	ctrl := NewController(params, chainID, store, log, contract.NewRuntime(), nil)
	require.NoError(t, ctrl.Bootstrap(1_700_000_000, accounts, witnesses))

	// Bootstrap leaves no session open, so the store itself still satisfies
	// objectstore.RW here; seed the schedule the same direct way.
	require.NoError(t, state.ModifySchedule(ctrl.store, func(s *types.WitnessSchedule) {
		s.CurrentShuffledWitnesses = scheduled
		s.ScheduleTypes = make([]types.WitnessScheduleType, len(scheduled))
		for i := range s.ScheduleTypes {
			s.ScheduleTypes[i] = types.ScheduleElected
		}
		s.NumScheduled = uint32(len(scheduled))
	}))
	return ctrl
}

// newMultiWitnessController seeds four scheduled witnesses so that
// irreversibility needs more than one confirmation to advance and a pushed
// block doesn't settle into the durable log the instant it is produced.
func newMultiWitnessController(t *testing.T) (*Controller, map[string]*crypto.PrivateKey) {
	t.Helper()
	names := []string{"alice", "bob", "carol", "dave"}
	keys := make(map[string]*crypto.PrivateKey, len(names))
	var accounts []types.Account
	var witnesses []types.Witness
	for _, name := range names {
		key := newKey(t)
		keys[name] = key
		accounts = append(accounts, types.Account{Name: name, Owner: soloAuth(key), Active: soloAuth(key)})
		witnesses = append(witnesses, types.Witness{
			Owner:        name,
			SigningKey:   key.PubKey().String(),
			MaxBlockSize: config.DefaultParams().MaxBlockSize,
		})
	}
	ctrl := newScenarioController(t, accounts, witnesses, names)
	return ctrl, keys
}

// signBlock builds and signs a block header by hand, for tests that need to
// construct a competing branch rather than go through GenerateBlock.
func signBlock(t *testing.T, key *crypto.PrivateKey, previous [32]byte, number uint64, witness string, timestamp int64) *types.Block {
	t.Helper()
	header := types.BlockHeader{Previous: previous, Number: number, Timestamp: timestamp, Witness: witness}
	digest, err := header.Digest()
	require.NoError(t, err)
	sig, err := key.Sign(digest)
	require.NoError(t, err)
	return &types.Block{Header: header, WitnessSignature: sig}
}

// lookupAccount reads committed-or-pending account state regardless of
// whether the controller currently has any block sitting in its applied
// (not yet irreversible) stack.
func lookupAccount(t *testing.T, ctrl *Controller, name string) types.Account {
	t.Helper()
	sess := readSession(t, ctrl)
	defer sess.Discard()
	a, err := state.MustGetAccount(sess, name)
	require.NoError(t, err)
	return a
}

func lookupGlobal(t *testing.T, ctrl *Controller) types.GlobalDynamicProperties {
	t.Helper()
	sess := readSession(t, ctrl)
	defer sess.Discard()
	g, err := state.Global(sess)
	require.NoError(t, err)
	return g
}

func readSession(t *testing.T, ctrl *Controller) *objectstore.Session {
	t.Helper()
	if len(ctrl.applied) == 0 {
		return ctrl.store.Begin()
	}
	sess, err := ctrl.applied[len(ctrl.applied)-1].sess.Begin()
	require.NoError(t, err)
	return sess
}

// TestScenarioTransferMovesLiquidBalance is section 8's transfer scenario:
// a signed transfer pushed through the mempool and picked up into the next
// generated block moves liquid balance without changing total supply.
func TestScenarioTransferMovesLiquidBalance(t *testing.T) {
	key := newKey(t)
	alice := types.Account{
		Name:    "alice",
		Owner:   soloAuth(key),
		Active:  soloAuth(key),
		Balance: types.NewAsset(types.AssetLiquid, big.NewInt(1_000_000)),
	}
	bob := types.Account{Name: "bob", Balance: types.Zero(types.AssetLiquid)}
	witness := types.Witness{Owner: "alice", SigningKey: key.PubKey().String(), MaxBlockSize: config.DefaultParams().MaxBlockSize}
	ctrl := newScenarioController(t, []types.Account{alice, bob}, []types.Witness{witness}, []string{"alice"})

	b1, err := ctrl.GenerateBlock(1_700_000_003, "alice", key)
	require.NoError(t, err)
	b1ID, err := b1.ID()
	require.NoError(t, err)

	var chainID [32]byte
	env, err := types.EncodeOperation(&types.TransferOp{
		From:   "alice",
		To:     "bob",
		Amount: types.NewAsset(types.AssetLiquid, big.NewInt(12_500)),
	})
	require.NoError(t, err)
	tx := &types.Transaction{
		RefBlockNum:    1,
		RefBlockPrefix: types.RefBlockPrefix(b1ID),
		Expiration:     1_700_000_003 + 3600,
		Ops:            []types.OpEnvelope{env},
	}
	digest, err := tx.SigningDigest(chainID)
	require.NoError(t, err)
	sig, err := key.Sign(digest)
	require.NoError(t, err)
	tx.Signatures = [][]byte{sig}

	require.NoError(t, ctrl.PushTransaction(tx))

	b2, err := ctrl.GenerateBlock(1_700_000_006, "alice", key)
	require.NoError(t, err)
	require.Len(t, b2.Transactions, 1, "the pushed transfer should be picked up into the next block")

	aliceAcct := lookupAccount(t, ctrl, "alice")
	bobAcct := lookupAccount(t, ctrl, "bob")
	require.Equal(t, big.NewInt(1_000_000-12_500), aliceAcct.Balance.Amount)
	require.Equal(t, big.NewInt(12_500), bobAcct.Balance.Amount)

	g := lookupGlobal(t, ctrl)
	require.Equal(t, big.NewInt(1_000_000), g.CurrentSupply.Amount, "a transfer must not change total supply")
}

// TestScenarioVestingRoundTrip is section 8's vesting scenario: converting
// liquid balance to vesting shares and powering back down over the
// configured number of weekly installments returns the original amount.
func TestScenarioVestingRoundTrip(t *testing.T) {
	rw := newTestSession(t)
	params := config.DefaultParams()
	require.NoError(t, state.CreateAccount(rw, types.Account{
		Name:          "alice",
		Balance:       types.NewAsset(types.AssetLiquid, big.NewInt(130_000)),
		VestingShares: types.Zero(types.AssetVesting),
	}))
	require.NoError(t, state.InitGlobal(rw, types.GlobalDynamicProperties{
		TotalVestingFund:   types.Zero(types.AssetLiquid),
		TotalVestingShares: types.Zero(types.AssetVesting),
	}))

	ctx := &evaluator.Context{RW: rw, Params: params, HeadTime: 1_700_000_000, HeadBlock: 1, Emit: func(types.Event) {}}
	require.NoError(t, evaluator.Dispatch(ctx, &types.TransferToVestingOp{
		From:   "alice",
		To:     "alice",
		Amount: types.NewAsset(types.AssetLiquid, big.NewInt(130_000)),
	}))

	alice, err := state.MustGetAccount(rw, "alice")
	require.NoError(t, err)
	require.Zero(t, alice.Balance.Amount.Sign(), "all liquid balance should have moved into vesting")
	shares := new(big.Int).Set(alice.VestingShares.Amount)
	require.Equal(t, big.NewInt(130_000), shares, "first deposit prices shares 1:1 against an empty vesting pool")

	require.NoError(t, evaluator.Dispatch(ctx, &types.WithdrawVestingOp{
		Account:       "alice",
		VestingShares: types.NewAsset(types.AssetVesting, shares),
	}))

	headTime := int64(1_700_000_000)
	for i := 0; i < params.PowerDownIntervals; i++ {
		headTime += params.PowerDownWeekSeconds
		ctx.HeadTime = headTime
		require.NoError(t, ProcessVestingWithdrawals(ctx))
	}

	alice, err = state.MustGetAccount(rw, "alice")
	require.NoError(t, err)
	require.Zero(t, alice.VestingShares.Amount.Sign(), "all vesting shares should have withdrawn back to liquid")
	require.Equal(t, big.NewInt(130_000), alice.Balance.Amount, "liquid balance should round-trip back to the original amount")
	require.Equal(t, int64(0), alice.NextVestingWithdrawal)
}

// TestScenarioOrderBookPartiallyFillsRestingOrder is section 8's order book
// scenario: a crossing order consumes a resting order down to its remainder
// and each side is paid in the asset it was actually sold.
func TestScenarioOrderBookPartiallyFillsRestingOrder(t *testing.T) {
	rw := newTestSession(t)
	params := config.DefaultParams()
	require.NoError(t, state.CreateAccount(rw, types.Account{
		Name:        "alice",
		Balance:     types.NewAsset(types.AssetLiquid, big.NewInt(10_000)),
		DebtBalance: types.Zero(types.AssetDebt),
	}))
	require.NoError(t, state.CreateAccount(rw, types.Account{
		Name:        "bob",
		DebtBalance: types.NewAsset(types.AssetDebt, big.NewInt(7_500)),
		Balance:     types.Zero(types.AssetLiquid),
	}))

	ctx := &evaluator.Context{RW: rw, Params: params, HeadTime: 1_700_000_000, HeadBlock: 1, Emit: func(types.Event) {}}

	require.NoError(t, evaluator.Dispatch(ctx, &types.LimitOrderCreateOp{
		Owner:          "alice",
		OrderID:        1,
		AmountToSell:   types.NewAsset(types.AssetLiquid, big.NewInt(10_000)),
		MinToReceive:   types.NewAsset(types.AssetDebt, big.NewInt(15_000)),
		ExpirationUnix: 1_700_100_000,
	}))
	require.NoError(t, evaluator.Dispatch(ctx, &types.LimitOrderCreateOp{
		Owner:          "bob",
		OrderID:        1,
		AmountToSell:   types.NewAsset(types.AssetDebt, big.NewInt(7_500)),
		MinToReceive:   types.NewAsset(types.AssetLiquid, big.NewInt(5_000)),
		ExpirationUnix: 1_700_100_000,
	}))

	alice, err := state.MustGetAccount(rw, "alice")
	require.NoError(t, err)
	require.Zero(t, alice.Balance.Amount.Sign(), "alice's liquid balance moved entirely into the resting order")
	require.Equal(t, big.NewInt(7_500), alice.DebtBalance.Amount, "alice should be paid in the debt asset bob sold")

	bob, err := state.MustGetAccount(rw, "bob")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5_000), bob.Balance.Amount, "bob should receive the liquid asset alice sold")
	require.Zero(t, bob.DebtBalance.Amount.Sign())

	aliceOrder, ok, err := state.GetLimitOrder(rw, "alice", 1)
	require.NoError(t, err)
	require.True(t, ok, "alice's order is only half filled and should remain resting")
	require.Equal(t, big.NewInt(5_000), aliceOrder.ForSale.Amount)

	_, ok, err = state.GetLimitOrder(rw, "bob", 1)
	require.NoError(t, err)
	require.False(t, ok, "bob's order should be fully consumed")
}

// TestScenarioVoteThenCashoutPaysAuthorAndCurator is section 8's vote +
// cashout scenario: a vote's rshares drive a comment's payout once its
// cashout window elapses, split between the curator and the author.
func TestScenarioVoteThenCashoutPaysAuthorAndCurator(t *testing.T) {
	rw := newTestSession(t)
	params := config.DefaultParams()
	require.NoError(t, state.CreateAccount(rw, types.Account{
		Name:                 "alice",
		RewardLiquidBalance:  types.Zero(types.AssetLiquid),
		RewardVestingShares:  types.Zero(types.AssetVesting),
		RewardVestingBalance: types.Zero(types.AssetLiquid),
	}))
	require.NoError(t, state.CreateAccount(rw, types.Account{
		Name:                   "bob",
		VestingShares:          types.NewAsset(types.AssetVesting, big.NewInt(1_000_000)),
		ReceivedVestingShares:  types.Zero(types.AssetVesting),
		DelegatedVestingShares: types.Zero(types.AssetVesting),
		RewardVestingShares:    types.Zero(types.AssetVesting),
		RewardVestingBalance:   types.Zero(types.AssetLiquid),
	}))
	require.NoError(t, state.InitGlobal(rw, types.GlobalDynamicProperties{
		TotalVestingFund:              types.Zero(types.AssetLiquid),
		TotalVestingShares:            types.Zero(types.AssetVesting),
		PendingRewardedVestingShares:  types.Zero(types.AssetVesting),
		PendingRewardedVestingBalance: types.Zero(types.AssetLiquid),
	}))

	headTime := int64(1_700_000_000)
	require.NoError(t, state.InitRewardFund(rw, types.RewardFund{
		Name:            "post",
		RewardBalance:   types.NewAsset(types.AssetLiquid, big.NewInt(1_000_000)),
		RecentClaims:    big.NewInt(0),
		LastUpdateUnix:  headTime,
		ContentConstant: big.NewInt(2_000_000_000_000),
		PercentCuration: 2500,
		Quadratic:       false,
	}))

	ctx := &evaluator.Context{RW: rw, Params: params, HeadTime: headTime, HeadBlock: 1, Emit: func(types.Event) {}}
	require.NoError(t, evaluator.Dispatch(ctx, &types.CommentOp{
		Author:   "alice",
		Permlink: "hello-world",
		Title:    "Hello",
		Body:     "First post",
	}))
	require.NoError(t, evaluator.Dispatch(ctx, &types.CommentOptionsOp{
		Author:               "alice",
		Permlink:             "hello-world",
		MaxAcceptedPayout:    types.NewAsset(types.AssetDebt, big.NewInt(1_000_000_00000)),
		PercentCuration:      2500,
		AllowVotes:           true,
		AllowCurationRewards: true,
	}))

	// Cast the vote once the reverse-auction window has fully elapsed, so it
	// counts at full weight.
	ctx.HeadTime = headTime + params.ReverseAuctionWindowSeconds
	require.NoError(t, evaluator.Dispatch(ctx, &types.VoteOp{
		Voter:    "bob",
		Author:   "alice",
		Permlink: "hello-world",
		Weight:   10000,
	}))

	ctx.HeadTime = headTime + params.CashoutWindowSeconds + 1
	require.NoError(t, ProcessCashouts(ctx))

	alice, err := state.MustGetAccount(rw, "alice")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(375_000), alice.RewardLiquidBalance.Amount, "author's residual half of the author pool lands in liquid rewards")
	require.Equal(t, big.NewInt(375_000), alice.RewardVestingShares.Amount, "author's other half vests")

	bob, err := state.MustGetAccount(rw, "bob")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(250_000), bob.RewardVestingShares.Amount, "the sole curator receives the full curation pool")

	comment, _, err := state.GetComment(rw, "alice", "hello-world")
	require.NoError(t, err)
	require.Equal(t, int64(1)<<62, comment.CashoutTimeUnix, "cashout resets the comment's cashout time to the archival sentinel")
	require.Equal(t, big.NewInt(1_000_000), comment.TotalPayoutValue.Amount)
}

// TestScenarioForkSwitchReplaysOntoAlternateBranch is section 8's fork
// switch scenario: pushing a block that does not extend the current head
// rewinds the divergent suffix and replays the alternate branch.
func TestScenarioForkSwitchReplaysOntoAlternateBranch(t *testing.T) {
	ctrl, keys := newMultiWitnessController(t)

	a1, err := ctrl.GenerateBlock(1_700_000_003, "alice", keys["alice"])
	require.NoError(t, err)
	_, err = ctrl.GenerateBlock(1_700_000_006, "bob", keys["bob"])
	require.NoError(t, err)
	a1ID, err := a1.ID()
	require.NoError(t, err)

	b2 := signBlock(t, keys["carol"], a1ID, 2, "carol", 1_700_000_100)
	require.NoError(t, ctrl.PushBlock(b2))
	b2ID, err := b2.ID()
	require.NoError(t, err)

	headID, headNum, ok := ctrl.headID()
	require.True(t, ok)
	require.Equal(t, uint64(2), headNum)
	require.Equal(t, b2ID, headID, "pushing carol's block should switch the head off bob's branch")

	b3 := signBlock(t, keys["dave"], b2ID, 3, "dave", 1_700_000_200)
	require.NoError(t, ctrl.PushBlock(b3))
	b3ID, err := b3.ID()
	require.NoError(t, err)

	headID, headNum, ok = ctrl.headID()
	require.True(t, ok)
	require.Equal(t, uint64(3), headNum)
	require.Equal(t, b3ID, headID)
}

// TestScenarioIrreversibilityAdvancesOnceASupermajorityConfirms is section
// 8's irreversibility scenario: the last-irreversible-block number only
// advances, and blocks only become durable, once enough scheduled witnesses
// have confirmed past them.
func TestScenarioIrreversibilityAdvancesOnceASupermajorityConfirms(t *testing.T) {
	ctrl, keys := newMultiWitnessController(t)

	order := []string{"alice", "bob", "carol", "dave"}
	blocks := make([]*types.Block, 0, len(order))
	target := int64(1_700_000_003)
	for _, name := range order {
		b, err := ctrl.GenerateBlock(target, name, keys[name])
		require.NoError(t, err)
		blocks = append(blocks, b)
		target += 3
	}

	g := lookupGlobal(t, ctrl)
	require.Equal(t, uint64(2), g.LastIrreversibleBlockNum, "the 3rd confirmation makes block 1 irreversible, the 4th makes block 2")

	headLog, ok := ctrl.log.Head()
	require.True(t, ok)
	require.Equal(t, uint64(2), headLog)

	logged1, err := ctrl.log.ReadBlockByNum(1)
	require.NoError(t, err)
	loggedID1, err := logged1.ID()
	require.NoError(t, err)
	b1ID, err := blocks[0].ID()
	require.NoError(t, err)
	require.Equal(t, b1ID, loggedID1)

	_, err = ctrl.log.ReadBlockByNum(3)
	require.Error(t, err, "block 3 has not yet reached a supermajority and should not be durable yet")

	headID, headNum, ok := ctrl.headID()
	require.True(t, ok)
	require.Equal(t, uint64(4), headNum)
	b4ID, err := blocks[3].ID()
	require.NoError(t, err)
	require.Equal(t, b4ID, headID, "the still-reversible tip should remain the applied head")
}

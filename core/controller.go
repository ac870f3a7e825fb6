package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"gamebankcore/config"
	"gamebankcore/contract"
	"gamebankcore/core/blocklog"
	"gamebankcore/core/evaluator"
	"gamebankcore/core/forktree"
	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/crypto"
	"gamebankcore/mempool"
	"gamebankcore/objectstore"
	"gamebankcore/observability"
)

// Notifications bundles the best-effort signal hooks the controller fires
// during block/transaction application (section 4.7's "owns... the
// notification signals"). Every field is nil-safe; a panicking subscriber
// is never allowed to unwind into the controller, matching the
// "notifications... are best-effort" propagation policy of section 9.
type Notifications struct {
	PreApplyBlock    func(*types.Block)
	PostApplyBlock   func(*types.Block)
	PreApplyTx       func(*types.Transaction)
	PostApplyTx      func(*types.Transaction)
	PreApplyOp       func(types.Operation)
	PostApplyOp      func(types.Operation)
	OnIrreversible   func(blockNum uint64)
	PreReindex       func()
	PostReindex      func()
}

func (n *Notifications) fire(fn func()) {
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn()
}

// appliedEntry ties one open objectstore session to the fork-tree block id
// it was opened for, so a fork switch can discard sessions by walking the
// fork tree's branch-diff rather than re-deriving it from the store.
type appliedEntry struct {
	id    [32]byte
	num   uint64
	sess  *objectstore.Session
}

// Controller is component F: the top-level orchestrator owning the write
// session stack, the pending/popped transaction pools, the fork tree, and
// the block log, grounded on the teacher's core.Chain which plays the same
// role over its own storage/state packages.
type Controller struct {
	mu sync.Mutex

	params  config.Params
	chainID [32]byte

	store   *objectstore.Store
	tree    *forktree.Tree
	log     *blocklog.Log
	runtime *contract.Runtime

	pending *mempool.Pool
	poppedTxs []*types.Transaction

	applied []appliedEntry // oldest (nearest LIB) first, newest (head) last

	pendingSession *objectstore.Session // push-transaction's own top-level session, nil when none open

	notify Notifications
	logger *slog.Logger
}

// NewController wires the object store, fork tree, and block log into a
// running controller. On a fresh chain, Bootstrap is called on the returned
// controller to load genesis state before any block is pushed.
func NewController(params config.Params, chainID [32]byte, store *objectstore.Store, log *blocklog.Log, runtime *contract.Runtime, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		params:  params,
		chainID: chainID,
		store:   store,
		tree:    forktree.New(),
		log:     log,
		runtime: runtime,
		pending: mempool.NewPool(10000),
		logger:  logger,
	}
	if headNum, ok := log.Head(); ok {
		if b, err := log.ReadBlockByNum(headNum); err == nil {
			if _, err := c.tree.Push(b); err != nil && err != forktree.ErrUnlinkable {
				logger.Warn("controller: failed to seed fork tree from block log head", "err", err)
			}
		}
	}
	return c
}

// SetNotifications installs the notification hooks used by push-block,
// push-transaction, and reindex.
func (c *Controller) SetNotifications(n Notifications) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = n
}

// Bootstrap initializes a brand-new chain's genesis state: the singleton
// global tables, the named genesis accounts, and the initial witness set.
// Must only be called against a store with no prior revision.
func (c *Controller) Bootstrap(genesisTime int64, accounts []types.Account, witnesses []types.Witness) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.Revision() != 0 {
		return fmt.Errorf("core: bootstrap requires an empty store")
	}
	// c.store itself satisfies objectstore.RW and writes straight to the
	// durable database as long as no session is open yet, so genesis state
	// lands directly in storage rather than sitting in an undo session.
	for _, a := range accounts {
		if err := state.CreateAccount(c.store, a); err != nil {
			return err
		}
	}
	for _, w := range witnesses {
		if err := state.PutWitness(c.store, w); err != nil {
			return err
		}
	}

	supply := new(big.Int)
	vestingFund := new(big.Int)
	vestingShares := new(big.Int)
	for _, a := range accounts {
		if a.Balance.Amount != nil {
			supply.Add(supply, a.Balance.Amount)
		}
		if a.SavingsBalance.Amount != nil {
			supply.Add(supply, a.SavingsBalance.Amount)
		}
		if a.VestingShares.Amount != nil {
			vestingShares.Add(vestingShares, a.VestingShares.Amount)
			vestingFund.Add(vestingFund, a.VestingShares.Amount)
		}
	}
	if err := state.InitGlobal(c.store, types.GlobalDynamicProperties{
		Time:               genesisTime,
		MaximumBlockSize:   c.params.MaxBlockSize,
		CurrentSupply:      types.NewAsset(types.AssetLiquid, supply),
		VirtualSupply:      types.NewAsset(types.AssetLiquid, supply),
		TotalVestingFund:   types.NewAsset(types.AssetLiquid, vestingFund),
		TotalVestingShares: types.NewAsset(types.AssetVesting, vestingShares),
	}); err != nil {
		return err
	}
	if err := state.InitSchedule(c.store, types.WitnessSchedule{}); err != nil {
		return err
	}
	if err := state.InitHardfork(c.store, types.HardforkProperty{}); err != nil {
		return err
	}
	if err := state.InitFeedHistory(c.store, types.FeedHistory{}); err != nil {
		return err
	}
	return nil
}

// headID returns the block id the controller currently considers applied:
// the top of the applied-session stack, or the zero id before genesis.
func (c *Controller) headID() ([32]byte, uint64, bool) {
	if len(c.applied) == 0 {
		return [32]byte{}, 0, false
	}
	top := c.applied[len(c.applied)-1]
	return top.id, top.num, true
}

// currentHeadLocked reports the block id/number the controller should build
// the next block on top of: the applied-session stack's tip once any block
// has been pushed in this process, or the durable store's committed global
// properties right after Bootstrap, before anything has been pushed.
func (c *Controller) currentHeadLocked(rw objectstore.RW) ([32]byte, uint64, error) {
	if id, num, ok := c.headID(); ok {
		return id, num, nil
	}
	g, err := state.Global(rw)
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("core: generate-block: no genesis state: %w", err)
	}
	return g.HeadBlockID, g.HeadBlockNumber, nil
}

// BlockDigestAt implements contract.BlockHashSource: it first checks the
// fork tree's currently-applied branch, falling back to the durable block
// log for anything already irreversible.
func (c *Controller) BlockDigestAt(blockNum uint64) ([32]byte, bool) {
	for _, e := range c.applied {
		if e.num == blockNum {
			return e.id, true
		}
	}
	if b, err := c.log.ReadBlockByNum(blockNum); err == nil {
		id, err := b.ID()
		if err == nil {
			return id, true
		}
	}
	return [32]byte{}, false
}

// PushBlock is the push-block algorithm (section 4.7): insert B into the
// fork tree, and if it does not extend the current head directly, switch
// forks by discarding the divergent suffix of the applied-session stack and
// replaying the new branch.
func (c *Controller) PushBlock(b *types.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	err := c.pushBlockLocked(b)
	observability.Consensus().ObserveApplyBlock(time.Since(start), err)
	return err
}

func (c *Controller) pushBlockLocked(b *types.Block) error {
	if err := checkBlockShape(b); err != nil {
		return err
	}

	id, err := b.ID()
	if err != nil {
		return err
	}
	if _, ok := c.tree.ByID(id); ok {
		return nil // already known
	}

	headBefore, headNumBefore, hadHead := c.headID()

	ref, err := c.tree.Push(b)
	if err != nil {
		if err == forktree.ErrUnlinkable {
			return fmt.Errorf("core: push-block: unknown parent for block %d", b.Header.Number)
		}
		return err
	}
	_ = ref

	if !hadHead {
		return c.applySingle(b)
	}

	if b.Header.Previous == headBefore {
		if err := c.applySingle(b); err != nil {
			c.tree.Remove(id)
			return err
		}
		return nil
	}

	// Fork switch: find the old and new branches back to their common
	// ancestor and replace the applied stack's divergent suffix.
	oldBranch, newBranch, err := c.tree.FetchBranchFrom(headBefore, id)
	if err != nil {
		return err
	}

	// Roll back from the current tip down to (but excluding) the LCA.
	rolledBack := 0
	for range oldBranch {
		if err := c.popAppliedLocked(); err != nil {
			return err
		}
		rolledBack++
	}
	if rolledBack > 0 {
		observability.Consensus().RecordForkSwitch()
	}

	// Replay the new branch from the LCA's child up to the tip.
	for i := len(newBranch) - 1; i >= 0; i-- {
		if err := c.applySingle(newBranch[i]); err != nil {
			// Abandon the switch: discard whatever of the new branch we
			// managed to apply and re-apply the old branch to restore head.
			for range newBranch[i+1:] {
				_ = c.popAppliedLocked()
			}
			for j := len(oldBranch) - 1; j >= 0; j-- {
				_ = c.applySingle(oldBranch[j])
			}
			c.tree.Remove(id)
			return err
		}
	}

	_ = headNumBefore
	return nil
}

// popAppliedLocked discards the topmost applied block's session, moving its
// transactions to the popped pool so push-transaction can retry them.
func (c *Controller) popAppliedLocked() error {
	if len(c.applied) == 0 {
		return fmt.Errorf("core: no applied block to pop")
	}
	top := c.applied[len(c.applied)-1]
	if err := top.sess.Discard(); err != nil {
		return err
	}
	c.applied = c.applied[:len(c.applied)-1]
	if b, ok := c.tree.ByID(top.id); ok {
		c.poppedTxs = append(c.poppedTxs, blockTxPointers(b)...)
	}
	return nil
}

func blockTxPointers(b *types.Block) []*types.Transaction {
	out := make([]*types.Transaction, len(b.Transactions))
	for i := range b.Transactions {
		out[i] = &b.Transactions[i]
	}
	return out
}

// applySingle opens one block-tagged child session atop the applied stack
// and runs the full apply-block algorithm, committing newly-irreversible
// blocks and recording the result on success.
func (c *Controller) applySingle(b *types.Block) error {
	c.notify.fire(func() { c.notify.PreApplyBlock(b) })

	var sess *objectstore.Session
	var err error
	if len(c.applied) == 0 {
		sess, err = c.store.BeginBlock(b.Header.Number)
	} else {
		sess, err = c.applied[len(c.applied)-1].sess.BeginBlockChild(b.Header.Number)
	}
	if err != nil {
		return err
	}

	if err := c.applyBlock(sess, b); err != nil {
		sess.Discard()
		return err
	}

	id, _ := b.ID()
	c.applied = append(c.applied, appliedEntry{id: id, num: b.Header.Number, sess: sess})

	if err := c.advanceIrreversibility(); err != nil {
		c.logger.Error("core: advance irreversibility failed", "err", err)
	}

	observability.Consensus().RecordHead(b.Header.Number, c.lastIrreversibleLocked())
	c.notify.fire(func() { c.notify.PostApplyBlock(b) })
	return nil
}

func (c *Controller) lastIrreversibleLocked() uint64 {
	headNum, ok := c.log.Head()
	if !ok {
		return 0
	}
	return headNum
}

// advanceIrreversibility implements apply-block step 8: recompute the
// supermajority-confirmed block number from the currently scheduled
// witnesses' last_confirmed_block_num, and if it advanced, commit every
// newly-irreversible session and append those blocks to the durable log.
func (c *Controller) advanceIrreversibility() error {
	top := c.applied[len(c.applied)-1]
	schedule, err := state.Schedule(top.sess)
	if err != nil {
		return nil // schedule not yet initialized (early genesis blocks)
	}
	if len(schedule.CurrentShuffledWitnesses) == 0 {
		return nil
	}
	confirmed := make([]uint64, 0, len(schedule.CurrentShuffledWitnesses))
	for _, name := range schedule.CurrentShuffledWitnesses {
		w, ok, err := state.GetWitness(top.sess, name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		confirmed = append(confirmed, w.LastConfirmedBlockNum)
	}
	if len(confirmed) == 0 {
		return nil
	}
	sort.Slice(confirmed, func(i, j int) bool { return confirmed[i] < confirmed[j] })
	// k = floor((1 - threshold) * N): the kth-smallest confirmation is the
	// highest block number at least `threshold` of witnesses have reached.
	n := len(confirmed)
	k := n * int(10000-c.params.IrreversibilityThresholdBps) / 10000
	if k >= n {
		k = n - 1
	}
	if k < 0 {
		k = 0
	}
	newLIB := confirmed[k]

	g, err := state.Global(top.sess)
	if err != nil {
		return err
	}
	if newLIB <= g.LastIrreversibleBlockNum {
		return nil
	}

	if err := state.ModifyGlobal(top.sess, func(gp *types.GlobalDynamicProperties) {
		gp.LastIrreversibleBlockNum = newLIB
	}); err != nil {
		return err
	}

	return c.commitThrough(newLIB)
}

// commitThrough flushes every applied session up to and including blockNum
// into durable storage and appends the corresponding blocks to the block
// log, firing on_irreversible_block for each.
func (c *Controller) commitThrough(blockNum uint64) error {
	flushed := 0
	for _, e := range c.applied {
		if e.num > blockNum {
			break
		}
		flushed++
	}
	if flushed == 0 {
		return nil
	}
	for i := 0; i < flushed; i++ {
		b, ok := c.tree.ByID(c.applied[i].id)
		if !ok {
			return fmt.Errorf("core: committed block %d missing from fork tree", c.applied[i].num)
		}
		if err := c.log.Append(b); err != nil {
			return err
		}
	}
	if err := c.store.Commit(blockNum); err != nil {
		return err
	}
	for i := 0; i < flushed; i++ {
		num := c.applied[i].num
		c.notify.fire(func() { c.notify.OnIrreversible(num) })
	}
	c.applied = c.applied[flushed:]
	c.tree.Prune()
	return nil
}

// checkBlockShape validates the structural bounds apply-block step 3
// enforces ahead of opening any session: a non-empty witness name and a
// transaction merkle root that matches the block's transactions. Block size
// is not checked.
func checkBlockShape(b *types.Block) error {
	if b == nil {
		return fmt.Errorf("core: nil block")
	}
	if b.Header.Witness == "" {
		return fmt.Errorf("core: block %d: empty witness", b.Header.Number)
	}
	root, err := types.MerkleRoot(b.Transactions)
	if err != nil {
		return err
	}
	if root != b.Header.TransactionMerkleRoot {
		return fmt.Errorf("core: block %d: transaction merkle root mismatch", b.Header.Number)
	}
	return nil
}

// applyBlock runs the apply-block algorithm's steps 4-16 against an already
// open session (steps 1-3, fork insertion and shape checks, already ran in
// PushBlock).
func (c *Controller) applyBlock(sess *objectstore.Session, b *types.Block) error {
	g, err := state.Global(sess)
	if err != nil {
		return err
	}
	if g.HeadBlockNumber != 0 && b.Header.Timestamp <= g.Time {
		return fmt.Errorf("core: block %d: non-increasing timestamp", b.Header.Number)
	}

	witness, ok, err := state.GetWitness(sess, b.Header.Witness)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("core: block %d: unknown witness %q", b.Header.Number, b.Header.Witness)
	}
	if witness.SigningKey != "" {
		digest, err := b.Header.Digest()
		if err != nil {
			return err
		}
		pub, err := crypto.RecoverPublicKey(digest, b.WitnessSignature)
		if err != nil {
			return fmt.Errorf("core: block %d: bad witness signature: %w", b.Header.Number, err)
		}
		if pub.String() != witness.SigningKey {
			return fmt.Errorf("core: block %d: witness signature does not match signing key", b.Header.Number)
		}
	}

	runtime := c.runtime
	hashes := contract.BlockHashSource(c)
	emit := c.eventSink(b.Header.Number)

	// step 6 (run ahead of the head-properties commit below so it can see
	// the prior head time/aslot): witnesses scheduled between the previous
	// head and this block that produced no block have their missed-block
	// counters bumped, and any witness idle for more than a day has its
	// signing key disabled.
	missedSlot, newAslot, err := c.updateMissedSlots(sess, b, g, emit)
	if err != nil {
		return err
	}

	// step 4: record current witness into global properties.
	if err := state.ModifyGlobal(sess, func(gp *types.GlobalDynamicProperties) {
		gp.HeadBlockNumber = b.Header.Number
		headID, _ := b.ID()
		gp.HeadBlockID = headID
		gp.Time = b.Header.Timestamp
		gp.CurrentWitness = b.Header.Witness
		gp.CurrentAslot = newAslot
	}); err != nil {
		return err
	}

	// step 5: apply each transaction in order.
	for txIdx := range b.Transactions {
		tx := &b.Transactions[txIdx]
		c.notify.fire(func() { c.notify.PreApplyTx(tx) })
		if err := c.applyTransaction(sess, tx, txIdx, b.Header.Number, b.Header.Timestamp, runtime, hashes, emit); err != nil {
			return fmt.Errorf("core: block %d tx %d: %w", b.Header.Number, txIdx, err)
		}
		c.notify.fire(func() { c.notify.PostApplyTx(tx) })
	}

	// step 7: fold this block's producer result into the participation
	// bitmap and confirm the signer's last-confirmed block.
	if err := UpdateParticipation(baseContext(sess, c.params, b), missedSlot); err != nil {
		return err
	}
	if err := state.ModifyWitness(sess, b.Header.Witness, func(w *types.Witness) {
		w.LastAslot = newAslot
		w.LastConfirmedBlockNum = b.Header.Number
	}); err != nil {
		return err
	}

	// step 9: block-summary ring.
	id, err := b.ID()
	if err != nil {
		return err
	}
	if err := state.PutBlockSummary(sess, b.Header.Number, id); err != nil {
		return err
	}

	// step 10: expire transient records.
	evalCtx := baseContext(sess, c.params, b)
	if err := state.RemoveExpiredTransactions(sess, b.Header.Timestamp); err != nil {
		return err
	}
	if err := ExpireOrders(evalCtx); err != nil {
		return err
	}
	if err := ExpireListings(evalCtx); err != nil {
		return err
	}
	if err := ExpireDelegations(evalCtx); err != nil {
		return err
	}

	// step 11: advance the witness schedule on round boundaries.
	if c.params.ScheduledWitnessCount > 0 && int(b.Header.Number)%c.params.ScheduledWitnessCount == 0 {
		if err := RotateSchedule(evalCtx); err != nil {
			return err
		}
	}

	// step 12: medianize the feed on its configured cadence.
	if c.params.FeedIntervalBlocks > 0 && b.Header.Number%c.params.FeedIntervalBlocks == 0 {
		if err := MedianizeFeed(evalCtx); err != nil {
			return err
		}
	}

	// step 13: update virtual supply ahead of the periodic economic tasks.
	if err := UpdateVirtualSupply(evalCtx); err != nil {
		return err
	}

	// step 14: periodic economic tasks, strictly ordered.
	if err := ClearNullAccountBalances(evalCtx); err != nil {
		return err
	}
	if err := ProcessInflation(evalCtx, b.Header.Witness, producerScheduleType(sess, b.Header.Witness)); err != nil {
		return err
	}
	if err := ProcessConversions(evalCtx); err != nil {
		return err
	}
	if err := ProcessCashouts(evalCtx); err != nil {
		return err
	}
	if err := ProcessVestingWithdrawals(evalCtx); err != nil {
		return err
	}
	if err := ProcessSavingsWithdrawals(evalCtx); err != nil {
		return err
	}
	if err := ProcessCrowdfundingExpiry(evalCtx); err != nil {
		return err
	}
	if c.params.LiquidityRewardIntervalBlocks > 0 && b.Header.Number%c.params.LiquidityRewardIntervalBlocks == 0 {
		if err := PayLiquidityReward(evalCtx); err != nil {
			return err
		}
	}

	// step 15: re-update virtual supply.
	if err := UpdateVirtualSupply(evalCtx); err != nil {
		return err
	}

	// step 16: delayed-request expirations and hardfork activation.
	if err := ProcessDelayedRequests(evalCtx); err != nil {
		return err
	}

	return nil
}

// oneDaySeconds bounds how long a scheduled witness may go without
// producing a block before apply-block step 6 disables its signing key.
const oneDaySeconds = 24 * 60 * 60

// updateMissedSlots walks every slot between the previous head block and b
// that produced no block, bumping the idle witness's missed-block counter
// and shutting down its signing key once it has gone quiet for more than a
// day (section 4.4 step 6, section 9's "account missed-block counters").
// It returns whether any slot was missed between the prior head block and b,
// and the new current_aslot to record in global properties.
func (c *Controller) updateMissedSlots(sess *objectstore.Session, b *types.Block, g types.GlobalDynamicProperties, emit func(types.Event)) (bool, uint64, error) {
	if c.params.BlockIntervalSeconds <= 0 || g.HeadBlockNumber == 0 {
		return false, g.CurrentAslot, nil
	}
	schedule, err := state.Schedule(sess)
	if err != nil || len(schedule.CurrentShuffledWitnesses) == 0 {
		return false, g.CurrentAslot, nil
	}

	slotsElapsed := (b.Header.Timestamp - g.Time) / c.params.BlockIntervalSeconds
	if slotsElapsed < 1 {
		slotsElapsed = 1
	}
	newAslot := g.CurrentAslot + uint64(slotsElapsed)
	n := uint64(len(schedule.CurrentShuffledWitnesses))

	for i := uint64(1); i < uint64(slotsElapsed); i++ {
		slot := g.CurrentAslot + i
		name := schedule.CurrentShuffledWitnesses[slot%n]
		observability.Consensus().RecordMissedSlot()

		var shutDown bool
		if err := state.ModifyWitness(sess, name, func(w *types.Witness) {
			w.TotalMissed++
			if w.SigningKey == "" {
				return
			}
			idleSeconds := (newAslot - w.LastAslot) * uint64(c.params.BlockIntervalSeconds)
			if idleSeconds > oneDaySeconds {
				w.SigningKey = ""
				shutDown = true
			}
		}); err != nil {
			return true, newAslot, err
		}
		if shutDown {
			emit(types.Event{
				Type:     types.EventShutdownWitness,
				BlockNum: b.Header.Number,
				TxIndex:  -1,
				OpIndex:  -1,
				Fields:   fmt.Sprintf(`{"owner":%q}`, name),
			})
		}
	}
	return slotsElapsed > 1, newAslot, nil
}

// eventSink returns an emit function that logs every virtual operation at
// debug level; a richer subscriber (e.g. an RPC notification feed) can be
// layered on top via Notifications without this controller depending on it.
func (c *Controller) eventSink(blockNum uint64) func(types.Event) {
	return func(e types.Event) {
		c.logger.Debug("virtual operation", "block", blockNum, "type", e.Type, "tx_index", e.TxIndex)
	}
}

// baseContext builds an evaluator.Context for periodic-task functions that
// run outside any single transaction (TxIndex/OpIndex are -1, matching
// section 6's "events not tied to a specific transaction").
func baseContext(rw objectstore.RW, params config.Params, b *types.Block) *evaluator.Context {
	return &evaluator.Context{
		RW:        rw,
		Params:    params,
		HeadTime:  b.Header.Timestamp,
		HeadBlock: b.Header.Number,
		TxIndex:   -1,
		OpIndex:   -1,
	}
}

// applyTransaction is the apply-transaction algorithm (section 4.4): validate,
// dedupe, authorize, check TaPoS and expiration, then dispatch every
// operation in order under the block's (or pending pool's) session.
func (c *Controller) applyTransaction(rw objectstore.RW, tx *types.Transaction, txIndex int, headBlock uint64, headTime int64, runtime *contract.Runtime, hashes contract.BlockHashSource, emit func(types.Event)) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	id, err := tx.ID()
	if err != nil {
		return err
	}
	if has, err := state.HasTransaction(rw, id); err != nil {
		return err
	} else if has {
		return fmt.Errorf("core: duplicate transaction %x", id)
	}

	if err := VerifyAuthorities(rw, tx, c.chainID); err != nil {
		return err
	}

	summary, ok, err := state.BlockSummaryAt(rw, tx.RefBlockNum)
	if err != nil {
		return err
	}
	if !ok || types.RefBlockPrefix(summary.ID) != tx.RefBlockPrefix {
		return fmt.Errorf("core: transaction %x fails TaPoS check", id)
	}

	if tx.Expiration <= headTime || tx.Expiration > headTime+types.MaxExpirationSeconds {
		return fmt.Errorf("core: transaction %x expiration out of bounds", id)
	}

	if err := state.RecordTransaction(rw, id, tx.Expiration); err != nil {
		return err
	}

	ops, err := tx.Operations()
	if err != nil {
		return err
	}
	ctx := &evaluator.Context{
		RW:              rw,
		Params:          c.params,
		HeadTime:        headTime,
		HeadBlock:       headBlock,
		TxIndex:         txIndex,
		Emit:            emit,
		ContractRuntime: runtime,
		Hashes:          hashes,
	}
	for opIdx, op := range ops {
		ctx.OpIndex = opIdx
		c.notify.fire(func() { c.notify.PreApplyOp(op) })
		if err := evaluator.Dispatch(ctx, op); err != nil {
			return err
		}
		c.notify.fire(func() { c.notify.PostApplyOp(op) })
	}
	return nil
}

// PushTransaction is the push-transaction algorithm (section 4.7): apply a
// standalone transaction into a persistent pending session so its effects
// are visible to subsequent pushes, and register it with the mempool so
// block production can pick it up later.
func (c *Controller) PushTransaction(tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pendingSession == nil {
		if len(c.applied) == 0 {
			c.pendingSession = c.store.Begin()
		} else {
			sess, err := c.applied[len(c.applied)-1].sess.Begin()
			if err != nil {
				return err
			}
			c.pendingSession = sess
		}
	}

	child, err := c.pendingSession.Begin()
	if err != nil {
		return err
	}

	g, err := state.Global(child)
	if err != nil {
		child.Discard()
		return err
	}

	id, err := tx.ID()
	if err != nil {
		child.Discard()
		return err
	}

	if err := c.applyTransaction(child, tx, -1, g.HeadBlockNumber, g.Time, c.runtime, contract.BlockHashSource(c), nil); err != nil {
		child.Discard()
		observability.Mempool().RecordRejected("apply_failed")
		return err
	}
	if err := child.Squash(); err != nil {
		return err
	}

	if evicted, err := c.pending.Admit(c.pendingSession, tx, id); err != nil {
		observability.Mempool().RecordRejected("pool_full")
	} else {
		_ = evicted
	}
	observability.Mempool().SetSize(c.pending.Len())
	return nil
}

// GenerateBlock is the generate-block algorithm (section 4.7): assemble and
// sign a new block from the pending pool under the given producer identity,
// then push it through the same path an externally received block follows.
func (c *Controller) GenerateBlock(target int64, producer string, key *crypto.PrivateKey) (*types.Block, error) {
	c.mu.Lock()

	// step 3 (discarded up front, since push-transaction's pending session
	// sits on top of the applied stack and would otherwise block this
	// call's own session from nesting there).
	if c.pendingSession != nil {
		_ = c.pendingSession.Discard()
		c.pendingSession = nil
	}

	// A disposable session atop whatever the controller currently
	// considers applied: the top of the applied-session stack once any
	// block has been pushed in this process, or the durable store's last
	// committed revision right after Bootstrap, before the first block
	// exists to stack a session on top of.
	var sess *objectstore.Session
	var err error
	if len(c.applied) == 0 {
		sess = c.store.Begin()
	} else {
		sess, err = c.applied[len(c.applied)-1].sess.Begin()
	}
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	headID, headNum, err := c.currentHeadLocked(sess)
	if err != nil {
		sess.Discard()
		c.mu.Unlock()
		return nil, err
	}

	// step 1/2: the producer must be a known witness and, when it has an
	// on-chain signing key, sign with that key. The witness schedule is not
	// checked here.
	w, ok, err := state.GetWitness(sess, producer)
	if err != nil {
		sess.Discard()
		c.mu.Unlock()
		return nil, err
	}
	if !ok {
		sess.Discard()
		c.mu.Unlock()
		return nil, fmt.Errorf("core: generate-block: unknown producer %q", producer)
	}
	if w.SigningKey != "" && key.PubKey().String() != w.SigningKey {
		sess.Discard()
		c.mu.Unlock()
		return nil, fmt.Errorf("core: generate-block: signing key does not match %q's on-chain key", producer)
	}

	pending := c.pending.Transactions()

	// step 4: screen pending transactions against a disposable trial
	// session; the real apply happens when PushBlock re-applies for real.
	var applied []types.Transaction
	size := types.MinBlockSize
	for _, tx := range pending {
		if tx.Expiration <= target {
			continue
		}
		encodedLen := estimateTxSize(tx)
		if size+encodedLen > int(c.params.MaxBlockSize) {
			continue
		}
		child, err := sess.Begin()
		if err != nil {
			continue
		}
		if err := c.applyTransaction(child, tx, len(applied), headNum+1, target, c.runtime, contract.BlockHashSource(c), nil); err != nil {
			child.Discard()
			continue
		}
		if err := child.Squash(); err != nil {
			continue
		}
		size += encodedLen
		applied = append(applied, *tx)
	}
	sess.Discard()
	c.mu.Unlock()

	// step 5: assemble and step 6: sign the header.
	root, err := types.MerkleRoot(applied)
	if err != nil {
		return nil, err
	}
	header := types.BlockHeader{
		Previous:              headID,
		Number:                headNum + 1,
		Timestamp:             target,
		Witness:               producer,
		TransactionMerkleRoot: root,
	}
	digest, err := header.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}

	b := &types.Block{Header: header, Transactions: applied, WitnessSignature: sig}
	if err := c.PushBlock(b); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for i := range applied {
		id, err := applied[i].ID()
		if err == nil {
			c.pending.Remove(id)
		}
	}
	c.mu.Unlock()
	observability.Mempool().SetSize(c.pending.Len())
	return b, nil
}

// producerScheduleType looks up how witness earned its current slot (elected,
// miner, or virtual-runner), so ProcessInflation can scale its per-block
// producer reward accordingly (section 4.5).
func producerScheduleType(rw objectstore.RW, witness string) types.WitnessScheduleType {
	schedule, err := state.Schedule(rw)
	if err != nil {
		return types.ScheduleElected
	}
	for i, name := range schedule.CurrentShuffledWitnesses {
		if name == witness && i < len(schedule.ScheduleTypes) {
			return schedule.ScheduleTypes[i]
		}
	}
	return types.ScheduleElected
}

func estimateTxSize(tx *types.Transaction) int {
	n := 64
	for _, op := range tx.Ops {
		n += len(op.Payload) + 8
	}
	return n
}

// Reindex wipes the applied-session state and replays every block recorded
// in the durable block log through applySingle (section 4.7). The replay
// re-runs every integrity check, signature/merkle/TaPoS/auth verification
// included; none of them is skipped.
func (c *Controller) Reindex() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notify.fire(c.notify.PreReindex)
	c.log.DisableLocking()
	defer c.log.EnableLocking()

	c.store.UndoAll()
	c.applied = nil
	c.pending = mempool.NewPool(10000)
	c.tree = forktree.New()

	head, ok := c.log.Head()
	if !ok {
		c.notify.fire(c.notify.PostReindex)
		return nil
	}
	for n := uint64(1); n <= head; n++ {
		b, err := c.log.ReadBlockByNum(n)
		if err != nil {
			return fmt.Errorf("core: reindex: read block %d: %w", n, err)
		}
		if _, err := c.tree.Push(b); err != nil && err != forktree.ErrUnlinkable {
			return fmt.Errorf("core: reindex: link block %d: %w", n, err)
		}
		if err := c.applySingle(b); err != nil {
			return fmt.Errorf("core: reindex: apply block %d: %w", n, err)
		}
	}
	c.notify.fire(c.notify.PostReindex)
	return nil
}

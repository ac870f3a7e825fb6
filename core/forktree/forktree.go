// Package forktree implements the in-memory DAG of reversible blocks that
// section 4.3 calls the fork tree: items wrap a block and a weak parent
// link, indexed both by block id and by block number, with a separate
// unlinked collection for orphans awaiting their parent.
//
// Section 9's design notes rule out the source's shared-plus-weak pointer
// linked list for Go: items live in an arena (a slice) keyed by a
// generational index, "previous" is an optional index rather than an
// owning reference, and removal bumps a slot's generation so a stale index
// is detectably invalid rather than aliasing a reused slot.
package forktree

import (
	"fmt"

	"gamebankcore/core/types"
)

// Ref is a generational index into the tree's arena: Slot identifies the
// array position, Gen must match the slot's current generation for the ref
// to still be valid (section 9's "generational index").
type Ref struct {
	Slot uint32
	Gen  uint32
}

// Zero reports whether this ref is the unset "no parent" sentinel.
func (r Ref) Zero() bool { return r.Slot == 0 && r.Gen == 0 }

type item struct {
	gen      uint32
	occupied bool

	block  *types.Block
	id     [32]byte
	number uint64
	parent Ref // zero if this item's block is the genesis/root
}

// Tree is the volatile half of component B: an in-memory DAG of candidate
// blocks plus an unlinked orphan pool. The zero Tree is not usable; use New.
type Tree struct {
	arena    []item
	freeList []uint32

	byID     map[[32]byte]Ref
	byNumber map[uint64][]Ref

	unlinked map[[32]byte]*types.Block // keyed by the block's own id

	head     Ref
	headSet  bool
	maxSize  uint64 // 0 means unbounded
}

// New creates an empty fork tree.
func New() *Tree {
	return &Tree{
		// Slot 0 is permanently reserved as the "no parent" sentinel so a
		// zero Ref unambiguously means "no parent" rather than aliasing a
		// real item at slot 0.
		arena:    make([]item, 1),
		byID:     make(map[[32]byte]Ref),
		byNumber: make(map[uint64][]Ref),
		unlinked: make(map[[32]byte]*types.Block),
	}
}

// ErrUnlinkable is returned by Push when a block's parent is not yet known;
// the block is placed in the unlinked pool to await it (section 4.3).
var ErrUnlinkable = fmt.Errorf("forktree: block unlinkable to known parent")

func (t *Tree) allocLocked(b *types.Block, id [32]byte, parent Ref) Ref {
	var slot uint32
	if n := len(t.freeList); n > 0 {
		slot = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.arena[slot].gen++
	} else {
		slot = uint32(len(t.arena))
		t.arena = append(t.arena, item{gen: 1})
	}
	t.arena[slot].occupied = true
	t.arena[slot].block = b
	t.arena[slot].id = id
	t.arena[slot].number = b.Header.Number
	t.arena[slot].parent = parent
	return Ref{Slot: slot, Gen: t.arena[slot].gen}
}

func (t *Tree) get(r Ref) (*item, bool) {
	if r.Slot == 0 || int(r.Slot) >= len(t.arena) {
		return nil, false
	}
	it := &t.arena[r.Slot]
	if !it.occupied || it.gen != r.Gen {
		return nil, false
	}
	return it, true
}

// Push inserts a block into the tree. If its parent is already linked, the
// new item is linked in and Head() is updated when the insertion extends
// the longest chain (by block number). If the parent is unknown, the block
// is placed in the unlinked pool and ErrUnlinkable is returned.
//
// Pushing the very first block (no existing items, zero Previous) seeds the
// tree as its own root with no parent ref.
func (t *Tree) Push(b *types.Block) (Ref, error) {
	id, err := b.ID()
	if err != nil {
		return Ref{}, fmt.Errorf("forktree: hash block: %w", err)
	}
	if _, exists := t.byID[id]; exists {
		return t.byID[id], nil
	}

	var parent Ref
	if len(t.arena) > 1 || t.headSet {
		pr, ok := t.byID[b.Header.Previous]
		if !ok {
			t.unlinked[id] = b
			return Ref{}, ErrUnlinkable
		}
		parent = pr
	}

	ref := t.allocLocked(b, id, parent)
	t.byID[id] = ref
	t.byNumber[b.Header.Number] = append(t.byNumber[b.Header.Number], ref)
	delete(t.unlinked, id)

	if !t.headSet {
		t.head, t.headSet = ref, true
	} else if headItem, ok := t.get(t.head); ok && b.Header.Number > headItem.number {
		t.head = ref
	}

	t.tryLinkChildren(id)
	return ref, nil
}

// tryLinkChildren re-attempts every unlinked block once a new parent (id)
// becomes available, recursively chaining through however many orphans
// that unblocks.
func (t *Tree) tryLinkChildren(id [32]byte) {
	for {
		var linked [32]byte
		var found bool
		for childID, childBlock := range t.unlinked {
			if childBlock.Header.Previous == id {
				linked, found = childID, true
				break
			}
		}
		if !found {
			return
		}
		child := t.unlinked[linked]
		delete(t.unlinked, linked)
		if _, err := t.Push(child); err != nil {
			// Re-insertion failed for a reason other than "still unlinkable"
			// (impossible here since we just proved the parent exists), or
			// it re-queued into unlinked again under a race; either way stop
			// so we don't loop forever on the same entry.
			return
		}
		id = linked
	}
}

// Head returns the current head item's block, id, and number.
func (t *Tree) Head() (*types.Block, [32]byte, uint64, bool) {
	it, ok := t.get(t.head)
	if !ok {
		return nil, [32]byte{}, 0, false
	}
	return it.block, it.id, it.number, true
}

// ByID looks up an item's block by its block id.
func (t *Tree) ByID(id [32]byte) (*types.Block, bool) {
	ref, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	it, ok := t.get(ref)
	if !ok {
		return nil, false
	}
	return it.block, true
}

// ByNumber returns every linked block at a given number (non-unique index:
// multiple forks may share a number).
func (t *Tree) ByNumber(number uint64) []*types.Block {
	refs := t.byNumber[number]
	out := make([]*types.Block, 0, len(refs))
	for _, r := range refs {
		if it, ok := t.get(r); ok {
			out = append(out, it.block)
		}
	}
	return out
}

// Unlinked returns every orphan block awaiting its parent.
func (t *Tree) Unlinked() []*types.Block {
	out := make([]*types.Block, 0, len(t.unlinked))
	for _, b := range t.unlinked {
		out = append(out, b)
	}
	return out
}

// FetchBranchFrom walks both a and b back to their lowest common ancestor,
// returning each branch in tail-to-LCA-exclusive order (index 0 is the
// block itself, the last element is the LCA's immediate child).
func (t *Tree) FetchBranchFrom(a, b [32]byte) ([]*types.Block, []*types.Block, error) {
	aRef, ok := t.byID[a]
	if !ok {
		return nil, nil, fmt.Errorf("forktree: unknown block id for branch a")
	}
	bRef, ok := t.byID[b]
	if !ok {
		return nil, nil, fmt.Errorf("forktree: unknown block id for branch b")
	}

	aChain, err := t.ancestorsWithSelf(aRef)
	if err != nil {
		return nil, nil, err
	}
	bChain, err := t.ancestorsWithSelf(bRef)
	if err != nil {
		return nil, nil, err
	}

	aSeen := make(map[[32]byte]int, len(aChain))
	for i, blk := range aChain {
		id, _ := blk.ID()
		aSeen[id] = i
	}

	var lcaIdxA, lcaIdxB int = -1, -1
	for j, blk := range bChain {
		id, _ := blk.ID()
		if i, ok := aSeen[id]; ok {
			lcaIdxA, lcaIdxB = i, j
			break
		}
	}
	if lcaIdxA < 0 {
		return nil, nil, fmt.Errorf("forktree: no common ancestor between branches")
	}
	return aChain[:lcaIdxA], bChain[:lcaIdxB], nil
}

// ancestorsWithSelf returns ref's block followed by every ancestor, in
// descending-number (tail-to-root) order.
func (t *Tree) ancestorsWithSelf(ref Ref) ([]*types.Block, error) {
	var chain []*types.Block
	cur := ref
	for {
		it, ok := t.get(cur)
		if !ok {
			return nil, fmt.Errorf("forktree: dangling ancestor reference")
		}
		chain = append(chain, it.block)
		if it.parent.Zero() && it.number == 0 {
			break
		}
		if it.parent.Zero() {
			break
		}
		cur = it.parent
	}
	return chain, nil
}

// WalkMainBranchToNum descends the head's "previous" chain until reaching
// number n, returning that item's block.
func (t *Tree) WalkMainBranchToNum(n uint64) (*types.Block, error) {
	cur := t.head
	for {
		it, ok := t.get(cur)
		if !ok {
			return nil, fmt.Errorf("forktree: walk past an unlinked item")
		}
		if it.number == n {
			return it.block, nil
		}
		if it.number < n || it.parent.Zero() {
			return nil, fmt.Errorf("forktree: number %d not found on main branch", n)
		}
		cur = it.parent
	}
}

// SetMaxSize configures the pruning window: Prune will remove items whose
// number is <= head.number - N.
func (t *Tree) SetMaxSize(n uint64) { t.maxSize = n }

// Prune removes items too far behind the head to ever matter again, per
// the configured max size. It never removes the head's own ancestry chain
// element needed to resolve FetchBranchFrom for recent forks; callers are
// expected to call this only once a block has also become irreversible.
func (t *Tree) Prune() {
	if t.maxSize == 0 {
		return
	}
	headItem, ok := t.get(t.head)
	if !ok || headItem.number <= t.maxSize {
		return
	}
	floor := headItem.number - t.maxSize
	for number, refs := range t.byNumber {
		if number > floor {
			continue
		}
		for _, r := range refs {
			t.removeLocked(r)
		}
		delete(t.byNumber, number)
	}
}

// Remove deletes a specific block (by id) from the tree, used after a
// branch is proven invalid during a fork switch (section 4.3/4.4).
func (t *Tree) Remove(id [32]byte) {
	ref, ok := t.byID[id]
	if !ok {
		return
	}
	t.removeLocked(ref)
	refs := t.byNumber[t.arena[ref.Slot].number]
	filtered := refs[:0]
	for _, r := range refs {
		if r != ref {
			filtered = append(filtered, r)
		}
	}
	t.byNumber[t.arena[ref.Slot].number] = filtered
}

func (t *Tree) removeLocked(r Ref) {
	it, ok := t.get(r)
	if !ok {
		return
	}
	delete(t.byID, it.id)
	t.arena[r.Slot] = item{gen: it.gen}
	t.freeList = append(t.freeList, r.Slot)
}

// Size reports how many linked items the tree currently holds.
func (t *Tree) Size() int { return len(t.byID) }

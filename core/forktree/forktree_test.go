package forktree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gamebankcore/core/types"
)

func mkBlock(t *testing.T, previous [32]byte, number uint64, witness string) *types.Block {
	t.Helper()
	return &types.Block{Header: types.BlockHeader{
		Previous:  previous,
		Number:    number,
		Timestamp: int64(number) * 3,
		Witness:   witness,
	}}
}

func idOf(t *testing.T, b *types.Block) [32]byte {
	t.Helper()
	id, err := b.ID()
	require.NoError(t, err)
	return id
}

func TestPushGenesisBecomesHead(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")

	_, err := tree.Push(genesis)
	require.NoError(t, err)

	head, id, number, ok := tree.Head()
	require.True(t, ok)
	require.Equal(t, uint64(0), number)
	require.Equal(t, idOf(t, genesis), id)
	require.Same(t, genesis, head)
}

func TestPushChildExtendsHead(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	_, err := tree.Push(genesis)
	require.NoError(t, err)

	child := mkBlock(t, idOf(t, genesis), 1, "bob")
	_, err = tree.Push(child)
	require.NoError(t, err)

	_, headID, headNumber, ok := tree.Head()
	require.True(t, ok)
	require.Equal(t, uint64(1), headNumber)
	require.Equal(t, idOf(t, child), headID)
}

func TestPushUnknownParentGoesToUnlinkedPool(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	_, err := tree.Push(genesis)
	require.NoError(t, err)

	orphanParent := mkBlock(t, idOf(t, genesis), 1, "bob")
	orphan := mkBlock(t, idOf(t, orphanParent), 2, "carol")

	_, err = tree.Push(orphan)
	require.ErrorIs(t, err, ErrUnlinkable)
	require.Len(t, tree.Unlinked(), 1)

	_, err = tree.Push(orphanParent)
	require.NoError(t, err)

	require.Empty(t, tree.Unlinked(), "pushing the missing parent should re-link the queued orphan")
	_, _, headNumber, ok := tree.Head()
	require.True(t, ok)
	require.Equal(t, uint64(2), headNumber, "the re-linked orphan chain should now be the head")
}

func TestPushDuplicateBlockIsIdempotent(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	ref1, err := tree.Push(genesis)
	require.NoError(t, err)

	ref2, err := tree.Push(genesis)
	require.NoError(t, err)
	require.Equal(t, ref1, ref2)
	require.Equal(t, 1, tree.Size())
}

func TestByIDAndByNumber(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	_, err := tree.Push(genesis)
	require.NoError(t, err)

	forkA := mkBlock(t, idOf(t, genesis), 1, "bob")
	forkB := mkBlock(t, idOf(t, genesis), 1, "carol")
	_, err = tree.Push(forkA)
	require.NoError(t, err)
	_, err = tree.Push(forkB)
	require.NoError(t, err)

	got, ok := tree.ByID(idOf(t, forkA))
	require.True(t, ok)
	require.Equal(t, "bob", got.Header.Witness)

	atOne := tree.ByNumber(1)
	require.Len(t, atOne, 2, "two competing forks share block number 1")
}

func TestFetchBranchFromFindsCommonAncestor(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	_, err := tree.Push(genesis)
	require.NoError(t, err)

	common := mkBlock(t, idOf(t, genesis), 1, "alice")
	_, err = tree.Push(common)
	require.NoError(t, err)

	forkA1 := mkBlock(t, idOf(t, common), 2, "bob")
	forkA2 := mkBlock(t, idOf(t, forkA1), 3, "bob")
	require.NoError(t, pushAll(tree, forkA1, forkA2))

	forkB1 := mkBlock(t, idOf(t, common), 2, "carol")
	require.NoError(t, pushAll(tree, forkB1))

	aChain, bChain, err := tree.FetchBranchFrom(idOf(t, forkA2), idOf(t, forkB1))
	require.NoError(t, err)
	require.Len(t, aChain, 2, "forkA2 and forkA1, excluding the common ancestor's child boundary")
	require.Len(t, bChain, 1)
	require.Equal(t, idOf(t, forkA2), idOf(t, aChain[0]))
	require.Equal(t, idOf(t, forkB1), idOf(t, bChain[0]))
}

func pushAll(tree *Tree, blocks ...*types.Block) error {
	for _, b := range blocks {
		if _, err := tree.Push(b); err != nil {
			return err
		}
	}
	return nil
}

func TestWalkMainBranchToNum(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	require.NoError(t, pushAll(tree, genesis))

	b1 := mkBlock(t, idOf(t, genesis), 1, "alice")
	b2 := mkBlock(t, idOf(t, b1), 2, "bob")
	require.NoError(t, pushAll(tree, b1, b2))

	got, err := tree.WalkMainBranchToNum(1)
	require.NoError(t, err)
	require.Equal(t, idOf(t, b1), idOf(t, got))

	_, err = tree.WalkMainBranchToNum(5)
	require.Error(t, err)
}

func TestRemoveDropsItemFromBothIndexes(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	require.NoError(t, pushAll(tree, genesis))

	bad := mkBlock(t, idOf(t, genesis), 1, "bob")
	require.NoError(t, pushAll(tree, bad))

	tree.Remove(idOf(t, bad))
	_, ok := tree.ByID(idOf(t, bad))
	require.False(t, ok)
	require.Empty(t, tree.ByNumber(1))
}

func TestGenerationalRefGoesStaleAfterRemoveAndReuse(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	require.NoError(t, pushAll(tree, genesis))

	victim := mkBlock(t, idOf(t, genesis), 1, "bob")
	victimRef, err := tree.Push(victim)
	require.NoError(t, err)

	tree.Remove(idOf(t, victim))

	replacement := mkBlock(t, idOf(t, genesis), 1, "carol")
	replacementRef, err := tree.Push(replacement)
	require.NoError(t, err)

	require.Equal(t, victimRef.Slot, replacementRef.Slot, "the freed slot should be reused")
	require.NotEqual(t, victimRef.Gen, replacementRef.Gen, "reuse must bump the generation so the stale ref is distinguishable")

	_, ok := tree.ByID(idOf(t, victim))
	require.False(t, ok)
	got, ok := tree.ByID(idOf(t, replacement))
	require.True(t, ok)
	require.Equal(t, "carol", got.Header.Witness)
}

func TestPruneRemovesItemsBehindTheWindow(t *testing.T) {
	tree := New()
	tree.SetMaxSize(2)

	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	require.NoError(t, pushAll(tree, genesis))

	prev := idOf(t, genesis)
	for n := uint64(1); n <= 5; n++ {
		b := mkBlock(t, prev, n, "alice")
		require.NoError(t, pushAll(tree, b))
		prev = idOf(t, b)
	}

	tree.Prune()

	_, ok := tree.ByID(idOf(t, genesis))
	require.False(t, ok, "genesis is far behind head-2 and should be pruned")
	require.NotEmpty(t, tree.ByNumber(5), "recent blocks within the window survive")
}

func TestSizeTracksLinkedItemsOnly(t *testing.T) {
	tree := New()
	genesis := mkBlock(t, [32]byte{}, 0, "alice")
	require.NoError(t, pushAll(tree, genesis))
	require.Equal(t, 1, tree.Size())

	orphanParent := mkBlock(t, idOf(t, genesis), 1, "bob")
	orphan := mkBlock(t, idOf(t, orphanParent), 2, "carol")
	_, err := tree.Push(orphan)
	require.ErrorIs(t, err, ErrUnlinkable)

	require.Equal(t, 1, tree.Size(), "an unlinked orphan must not count toward Size")
}

package objectstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gamebankcore/storage"
)

func TestSessionPutVisibleWithinSessionNotDurable(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	sess := store.Begin()

	require.NoError(t, sess.Put([]byte("k"), []byte("v")))
	v, ok, err := sess.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	_, ok, err = store.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok, "an uncommitted session's writes must not be visible through the durable store")
}

func TestSessionDiscardRollsBack(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	sess := store.Begin()
	require.NoError(t, sess.Put([]byte("k"), []byte("v")))
	require.NoError(t, sess.Discard())

	_, ok, err := store.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, store.OpenSessionCount())
}

func TestSessionSquashMergesIntoParent(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	parent := store.Begin()
	require.NoError(t, parent.Put([]byte("a"), []byte("1")))

	child, err := parent.Begin()
	require.NoError(t, err)
	require.NoError(t, child.Put([]byte("b"), []byte("2")))
	require.NoError(t, child.Squash())

	require.Equal(t, 1, store.OpenSessionCount(), "squash should close the child, leaving only the parent")
	v, ok, err := parent.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

func TestOnlyTopmostSessionMaySpawnChild(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	bottom := store.Begin()
	_, err := bottom.Begin()
	require.NoError(t, err)

	_, err = bottom.Begin()
	require.Error(t, err, "a non-topmost session must not be able to spawn a child")
}

func TestCommitFlushesBlockTaggedSessionsInOrder(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	b1, err := store.BeginBlock(1)
	require.NoError(t, err)
	require.NoError(t, b1.Put([]byte("k1"), []byte("v1")))

	b2, err := b1.BeginBlockChild(2)
	require.NoError(t, err)
	require.NoError(t, b2.Put([]byte("k2"), []byte("v2")))

	require.NoError(t, store.Commit(1))
	require.Equal(t, uint64(1), store.Revision())
	require.Equal(t, 1, store.OpenSessionCount(), "only block 1's session should have flushed")

	v, ok, err := store.Get([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	_, ok, err = store.Get([]byte("k2"))
	require.NoError(t, err)
	require.False(t, ok, "block 2 has not been committed yet")

	require.NoError(t, store.Commit(2))
	require.Equal(t, uint64(2), store.Revision())
	require.Equal(t, 0, store.OpenSessionCount())
	v, ok, err = store.Get([]byte("k2"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
}

func TestUndoAllDiscardsEverything(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	sess := store.Begin()
	require.NoError(t, sess.Put([]byte("k"), []byte("v")))
	_, err := sess.Begin()
	require.NoError(t, err)

	store.UndoAll()
	require.Equal(t, 0, store.OpenSessionCount())
	_, ok, err := store.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

type widget struct {
	Name  string
	Count uint64
}

func TestTableCreateGetModifyRemove(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	sess := store.Begin()
	table := NewTable[widget]("widget/")

	require.NoError(t, table.Put(sess, []byte("w1"), widget{Name: "w1", Count: 1}))

	got, ok, err := table.Get(sess, []byte("w1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), got.Count)

	require.NoError(t, table.Modify(sess, []byte("w1"), func(w *widget) { w.Count++ }))
	got, err = table.MustGet(sess, []byte("w1"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), got.Count)

	require.NoError(t, table.Remove(sess, []byte("w1")))
	_, ok, err = table.Get(sess, []byte("w1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTableMustGetFailsWhenAbsent(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	sess := store.Begin()
	table := NewTable[widget]("widget/")

	_, err := table.MustGet(sess, []byte("missing"))
	require.Error(t, err)
}

func TestIndexScanOrdersBySecondaryKey(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	sess := store.Begin()
	index := NewIndex("byname/")

	require.NoError(t, index.Put(sess, []byte("b"), []byte("second")))
	require.NoError(t, index.Put(sess, []byte("a"), []byte("first")))

	var order []string
	require.NoError(t, index.Scan(sess, nil, func(id []byte) (bool, error) {
		order = append(order, string(id))
		return true, nil
	}))
	require.Equal(t, []string{"first", "second"}, order)

	require.NoError(t, index.Delete(sess, []byte("a"), []byte("first")))
	order = nil
	require.NoError(t, index.Scan(sess, nil, func(id []byte) (bool, error) {
		order = append(order, string(id))
		return true, nil
	}))
	require.Equal(t, []string{"second"}, order)
}

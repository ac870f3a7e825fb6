package mempool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
	"gamebankcore/storage"
)

func newTestSession(t *testing.T) *objectstore.Session {
	t.Helper()
	store := objectstore.NewStore(storage.NewMemDB())
	sess := store.Begin()
	t.Cleanup(func() { _ = sess.Discard() })
	return sess
}

func putAccount(t *testing.T, rw objectstore.RW, name string, vesting int64) {
	t.Helper()
	require.NoError(t, state.CreateAccount(rw, types.Account{
		Name:          name,
		VestingShares: types.NewAsset(types.AssetVesting, big.NewInt(vesting)),
	}))
}

func transferTx(t *testing.T, from, to string, expiration int64) *types.Transaction {
	t.Helper()
	env, err := types.EncodeOperation(&types.TransferOp{
		From:   from,
		To:     to,
		Amount: types.NewAsset(types.AssetLiquid, big.NewInt(1)),
	})
	require.NoError(t, err)
	return &types.Transaction{
		RefBlockNum:    1,
		RefBlockPrefix: 1,
		Expiration:     expiration,
		Ops:            []types.OpEnvelope{env},
	}
}

func TestWeightSumsSignerStake(t *testing.T) {
	sess := newTestSession(t)
	putAccount(t, sess, "alice", 1000)
	putAccount(t, sess, "bob", 500)

	tx := transferTx(t, "alice", "bob", 3600)
	weight, err := Weight(sess, tx)
	require.NoError(t, err)
	require.Zero(t, weight.Cmp(big.NewInt(1000)), "weight should be from-account stake only, transfer requires only From's active auth")
}

func TestPoolEvictsWeakestOnFull(t *testing.T) {
	sess := newTestSession(t)
	putAccount(t, sess, "heavy", 1_000_000)
	putAccount(t, sess, "light", 10)
	putAccount(t, sess, "medium", 500)

	pool := NewPool(2)

	heavyTx := transferTx(t, "heavy", "medium", 3600)
	lightTx := transferTx(t, "light", "medium", 3601)
	mediumTx := transferTx(t, "medium", "heavy", 3602)

	heavyID, err := heavyTx.ID()
	require.NoError(t, err)
	lightID, err := lightTx.ID()
	require.NoError(t, err)
	mediumID, err := mediumTx.ID()
	require.NoError(t, err)

	_, err = pool.Admit(sess, heavyTx, heavyID)
	require.NoError(t, err)
	_, err = pool.Admit(sess, lightTx, lightID)
	require.NoError(t, err)
	require.Equal(t, 2, pool.Len())

	evicted, err := pool.Admit(sess, mediumTx, mediumID)
	require.NoError(t, err, "admit medium should evict light")
	require.Equal(t, lightID, evicted)
	require.Equal(t, 2, pool.Len(), "pool should stay at capacity")

	txs := pool.Transactions()
	require.Len(t, txs, 2)
	firstID, err := txs[0].ID()
	require.NoError(t, err)
	require.Equal(t, heavyID, firstID, "heaviest transaction should sort first")
}

func TestPoolRejectsWeakerThanFloorWhenFull(t *testing.T) {
	sess := newTestSession(t)
	putAccount(t, sess, "heavy", 1_000_000)
	putAccount(t, sess, "heavy2", 999_999)
	putAccount(t, sess, "tiny", 1)

	pool := NewPool(2)
	tx1 := transferTx(t, "heavy", "tiny", 3600)
	tx2 := transferTx(t, "heavy2", "tiny", 3601)
	tx3 := transferTx(t, "tiny", "heavy", 3602)

	id1, err := tx1.ID()
	require.NoError(t, err)
	id2, err := tx2.ID()
	require.NoError(t, err)
	id3, err := tx3.ID()
	require.NoError(t, err)

	_, err = pool.Admit(sess, tx1, id1)
	require.NoError(t, err)
	_, err = pool.Admit(sess, tx2, id2)
	require.NoError(t, err)
	_, err = pool.Admit(sess, tx3, id3)
	require.Error(t, err, "tx3 should be rejected for insufficient priority")
	require.Equal(t, 2, pool.Len())
}

func TestPoolRejectsDuplicate(t *testing.T) {
	sess := newTestSession(t)
	putAccount(t, sess, "alice", 100)
	putAccount(t, sess, "bob", 100)

	pool := NewPool(10)
	tx := transferTx(t, "alice", "bob", 3600)
	id, err := tx.ID()
	require.NoError(t, err)

	_, err = pool.Admit(sess, tx, id)
	require.NoError(t, err)
	_, err = pool.Admit(sess, tx, id)
	require.Error(t, err, "duplicate admission should be rejected")
}

func TestPoolRemove(t *testing.T) {
	sess := newTestSession(t)
	putAccount(t, sess, "alice", 100)
	putAccount(t, sess, "bob", 100)

	pool := NewPool(10)
	tx := transferTx(t, "alice", "bob", 3600)
	id, err := tx.ID()
	require.NoError(t, err)
	_, err = pool.Admit(sess, tx, id)
	require.NoError(t, err)

	pool.Remove(id)
	require.Equal(t, 0, pool.Len())
}

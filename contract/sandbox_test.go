package contract

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
	"gamebankcore/storage"
)

type fakeHashes struct {
	digests map[uint64][32]byte
}

func (f *fakeHashes) BlockDigestAt(blockNum uint64) ([32]byte, bool) {
	d, ok := f.digests[blockNum]
	return d, ok
}

func newTestRW(t *testing.T) objectstore.RW {
	t.Helper()
	store := objectstore.NewStore(storage.NewMemDB())
	return store.Begin()
}

func zeroAccount(name string) types.Account {
	return types.Account{Name: name}
}

func TestSandboxGetDataReturnsEmptyTableWhenNoneStored(t *testing.T) {
	rw := newTestRW(t)
	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")

	table, err := sb.GetData()
	require.NoError(t, err)
	require.Empty(t, table)
}

func TestSandboxFlushPersistsDirtyOwnTable(t *testing.T) {
	rw := newTestRW(t)
	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")

	table, err := sb.GetData()
	require.NoError(t, err)
	table["score"] = float64(42)
	sb.MarkDirty("mygame")

	require.NoError(t, sb.Flush(1000))

	u, ok, err := state.GetContractUser(rw, "mygame", "mygame")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1000), u.CreatedUnix)
	require.Contains(t, u.DataJSON, "score")
}

func TestSandboxFlushSkipsUntouchedUserTables(t *testing.T) {
	rw := newTestRW(t)
	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")

	_, err := sb.GetUserData("bob")
	require.NoError(t, err)
	// bob's table was read but never marked dirty.
	require.NoError(t, sb.Flush(1000))

	_, ok, err := state.GetContractUser(rw, "mygame", "bob")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSandboxTransferCallerToContractMustTargetContract(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, state.CreateAccount(rw, zeroAccount("alice")))
	require.NoError(t, state.ModifyAccount(rw, "alice", func(a *types.Account) {
		a.Balance = types.NewAsset(types.AssetLiquid, big.NewInt(500))
	}))
	require.NoError(t, state.CreateContract(rw, types.SignedContract{Name: "mygame", Balance: types.Zero(types.AssetLiquid)}))

	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")

	err := sb.Transfer("alice", "mygame", types.NewAsset(types.AssetLiquid, big.NewInt(100)))
	require.NoError(t, err)

	alice, err := state.MustGetAccount(rw, "alice")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(400), alice.Balance.Amount)

	c, _, err := state.GetContract(rw, "mygame")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), c.Balance.Amount)

	err = sb.Transfer("alice", "bob", types.NewAsset(types.AssetLiquid, big.NewInt(1)))
	require.Error(t, err, "a caller-originated transfer must target the contract itself")
}

func TestSandboxTransferContractToAnyAccount(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, state.CreateAccount(rw, zeroAccount("bob")))
	require.NoError(t, state.CreateContract(rw, types.SignedContract{
		Name:    "mygame",
		Balance: types.NewAsset(types.AssetLiquid, big.NewInt(1000)),
	}))

	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")
	require.NoError(t, sb.Transfer("mygame", "bob", types.NewAsset(types.AssetLiquid, big.NewInt(250))))

	bob, err := state.MustGetAccount(rw, "bob")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(250), bob.Balance.Amount)

	c, _, err := state.GetContract(rw, "mygame")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(750), c.Balance.Amount)
}

func TestSandboxTransferRejectsUnrelatedFrom(t *testing.T) {
	rw := newTestRW(t)
	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")
	err := sb.Transfer("eve", "mygame", types.NewAsset(types.AssetLiquid, big.NewInt(1)))
	require.Error(t, err)
}

func TestSandboxTransferRejectsContractInsufficientBalance(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, state.CreateAccount(rw, zeroAccount("bob")))
	require.NoError(t, state.CreateContract(rw, types.SignedContract{Name: "mygame", Balance: types.Zero(types.AssetLiquid)}))

	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")
	err := sb.Transfer("mygame", "bob", types.NewAsset(types.AssetLiquid, big.NewInt(1)))
	require.Error(t, err)
}

func TestSandboxGetBlockHashIteratesConfiguredCount(t *testing.T) {
	rw := newTestRW(t)
	hashes := &fakeHashes{digests: map[uint64][32]byte{
		10: {1}, 8: {2}, 6: {3},
	}}
	sb := NewSandbox(rw, 10, hashes, "mygame", "alice", "alice")

	digest, err := sb.GetBlockHash(10, 3, 2)
	require.NoError(t, err)
	require.NotEqual(t, [20]byte{}, digest)
}

func TestSandboxGetBlockHashRejectsOutOfRangeCount(t *testing.T) {
	rw := newTestRW(t)
	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")

	_, err := sb.GetBlockHash(10, 0, 1)
	require.Error(t, err)

	_, err = sb.GetBlockHash(10, 101, 1)
	require.Error(t, err)
}

func TestSandboxGetBlockHashRejectsMissingDigest(t *testing.T) {
	rw := newTestRW(t)
	sb := NewSandbox(rw, 10, &fakeHashes{digests: map[uint64][32]byte{}}, "mygame", "alice", "alice")

	_, err := sb.GetBlockHash(10, 1, 1)
	require.Error(t, err)
}

func TestSandboxEmitAppendsLog(t *testing.T) {
	rw := newTestRW(t)
	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")

	require.NoError(t, sb.Emit("score", map[string]any{"value": float64(7)}))
	require.Len(t, sb.Logs, 1)
	require.Equal(t, "score", sb.Logs[0].Key)
}

func TestSandboxJSONStrToTableRoundTrips(t *testing.T) {
	rw := newTestRW(t)
	sb := NewSandbox(rw, 10, &fakeHashes{}, "mygame", "alice", "alice")

	table, err := sb.JSONStrToTable(`{"a":1}`)
	require.NoError(t, err)
	require.Equal(t, float64(1), table["a"])

	_, err = sb.JSONStrToTable(`not json`)
	require.Error(t, err)
}

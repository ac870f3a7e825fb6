package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"gamebankcore/core/types"
	"gamebankcore/objectstore"
	"gamebankcore/storage"
)

func newTestRW(t *testing.T) objectstore.RW {
	t.Helper()
	store := objectstore.NewStore(storage.NewMemDB())
	return store.Begin()
}

func TestCreateAccountRejectsDuplicateName(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, CreateAccount(rw, types.Account{Name: "alice"}))
	require.Error(t, CreateAccount(rw, types.Account{Name: "alice"}))
}

func TestModifyAccountAppliesMutation(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, CreateAccount(rw, types.Account{Name: "alice"}))

	require.NoError(t, ModifyAccount(rw, "alice", func(a *types.Account) {
		a.Balance = types.NewAsset(types.AssetLiquid, big.NewInt(500))
	}))

	got, err := MustGetAccount(rw, "alice")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), got.Balance.Amount)
}

func TestMustGetAccountFailsWhenAbsent(t *testing.T) {
	rw := newTestRW(t)
	_, err := MustGetAccount(rw, "nobody")
	require.Error(t, err)
}

func TestDueVestingWithdrawalsOrdersByWithdrawalTime(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, CreateAccount(rw, types.Account{Name: "alice", NextVestingWithdrawal: 100}))
	require.NoError(t, CreateAccount(rw, types.Account{Name: "bob", NextVestingWithdrawal: 50}))
	require.NoError(t, CreateAccount(rw, types.Account{Name: "carol", NextVestingWithdrawal: 200}))

	due, err := DueVestingWithdrawals(rw, 150, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "alice"}, due, "only withdrawals due at or before headTime, earliest first")
}

func TestModifyAccountRekeysWithdrawalIndexOnChange(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, CreateAccount(rw, types.Account{Name: "alice", NextVestingWithdrawal: 100}))

	require.NoError(t, ModifyAccount(rw, "alice", func(a *types.Account) {
		a.NextVestingWithdrawal = 300
	}))

	due, err := DueVestingWithdrawals(rw, 150, 10)
	require.NoError(t, err)
	require.Empty(t, due, "the withdrawal should have been re-keyed out of the 150-or-earlier window")

	due, err = DueVestingWithdrawals(rw, 300, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, due)
}

func TestIterateAccountsVisitsEveryAccount(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, CreateAccount(rw, types.Account{Name: "alice"}))
	require.NoError(t, CreateAccount(rw, types.Account{Name: "bob"}))

	var names []string
	require.NoError(t, IterateAccounts(rw, func(a types.Account) (bool, error) {
		names = append(names, a.Name)
		return true, nil
	}))
	require.Len(t, names, 2)
}

func TestGlobalInitAndModify(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, InitGlobal(rw, types.GlobalDynamicProperties{HeadBlockNumber: 1}))
	require.Error(t, InitGlobal(rw, types.GlobalDynamicProperties{HeadBlockNumber: 2}), "global properties may only be initialized once")

	require.NoError(t, ModifyGlobal(rw, func(g *types.GlobalDynamicProperties) {
		g.HeadBlockNumber = 42
	}))

	g, err := Global(rw)
	require.NoError(t, err)
	require.Equal(t, uint64(42), g.HeadBlockNumber)
}

func TestBlockSummaryRingWrapsByBlockNum(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, PutBlockSummary(rw, 1, [32]byte{1}))
	require.NoError(t, PutBlockSummary(rw, 1+0x10000, [32]byte{2}))

	summary, ok, err := BlockSummaryAt(rw, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [32]byte{2}, summary.ID, "the ring slot should hold the most recently written id")
}

func TestTransactionDedupeRecordAndExpire(t *testing.T) {
	rw := newTestRW(t)
	id := [32]byte{9}

	has, err := HasTransaction(rw, id)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, RecordTransaction(rw, id, 100))
	has, err = HasTransaction(rw, id)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, RemoveExpiredTransactions(rw, 50))
	has, err = HasTransaction(rw, id)
	require.NoError(t, err)
	require.True(t, has, "not yet expired at headTime 50")

	require.NoError(t, RemoveExpiredTransactions(rw, 150))
	has, err = HasTransaction(rw, id)
	require.NoError(t, err)
	require.False(t, has)
}

func TestPutWitnessAndTopWitnessesByVote(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, PutWitness(rw, types.Witness{Owner: "alice", Votes: big.NewInt(300)}))
	require.NoError(t, PutWitness(rw, types.Witness{Owner: "bob", Votes: big.NewInt(500)}))
	require.NoError(t, PutWitness(rw, types.Witness{Owner: "carol", Votes: big.NewInt(100)}))

	top, err := TopWitnessesByVote(rw, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "alice"}, top)
}

func TestModifyWitnessRekeysVoteIndex(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, PutWitness(rw, types.Witness{Owner: "alice", Votes: big.NewInt(100)}))
	require.NoError(t, PutWitness(rw, types.Witness{Owner: "bob", Votes: big.NewInt(200)}))

	require.NoError(t, ModifyWitness(rw, "alice", func(w *types.Witness) {
		w.Votes = big.NewInt(1000)
	}))

	top, err := TopWitnessesByVote(rw, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, top)
}

func TestTopMinerWitnessesOrdersMostRecentFirst(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, PutWitness(rw, types.Witness{Owner: "alice", Votes: big.NewInt(0), LastPowBlockNum: 10}))
	require.NoError(t, PutWitness(rw, types.Witness{Owner: "bob", Votes: big.NewInt(0), LastPowBlockNum: 20}))
	require.NoError(t, PutWitness(rw, types.Witness{Owner: "carol", Votes: big.NewInt(0)}))

	miners, err := TopMinerWitnesses(rw, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "alice"}, miners, "carol never mined and must not appear")
}

func TestModifyWitnessRekeysPowIndexOnRemine(t *testing.T) {
	rw := newTestRW(t)
	require.NoError(t, PutWitness(rw, types.Witness{Owner: "alice", Votes: big.NewInt(0), LastPowBlockNum: 5}))

	require.NoError(t, ModifyWitness(rw, "alice", func(w *types.Witness) {
		w.LastPowBlockNum = 50
	}))

	miners, err := TopMinerWitnesses(rw, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, miners)
}

package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/crypto"
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

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func soloAuth(key *crypto.PrivateKey) types.Authority {
	return types.Authority{
		WeightThreshold: 1,
		Entries:         []types.AuthorityEntry{{Key: key.PubKey().String(), Weight: 1}},
	}
}

func signedTransfer(t *testing.T, chainID [32]byte, from, to string, keys ...*crypto.PrivateKey) *types.Transaction {
	t.Helper()
	env, err := types.EncodeOperation(&types.TransferOp{
		From:   from,
		To:     to,
		Amount: types.NewAsset(types.AssetLiquid, big.NewInt(1)),
	})
	require.NoError(t, err)
	tx := &types.Transaction{
		RefBlockNum:    1,
		RefBlockPrefix: 1,
		Expiration:     3600,
		Ops:            []types.OpEnvelope{env},
	}
	digest, err := tx.SigningDigest(chainID)
	require.NoError(t, err)
	for _, key := range keys {
		sig, err := key.Sign(digest)
		require.NoError(t, err)
		tx.Signatures = append(tx.Signatures, sig)
	}
	return tx
}

func TestVerifyAuthoritiesSatisfiesWithSoleActiveKey(t *testing.T) {
	sess := newTestSession(t)
	var chainID [32]byte
	key := newKey(t)

	require.NoError(t, state.CreateAccount(sess, types.Account{Name: "alice", Active: soloAuth(key)}))
	require.NoError(t, state.CreateAccount(sess, types.Account{Name: "bob"}))

	tx := signedTransfer(t, chainID, "alice", "bob", key)
	require.NoError(t, VerifyAuthorities(sess, tx, chainID))
}

func TestVerifyAuthoritiesRejectsWithoutSignature(t *testing.T) {
	sess := newTestSession(t)
	var chainID [32]byte
	key := newKey(t)

	require.NoError(t, state.CreateAccount(sess, types.Account{Name: "alice", Active: soloAuth(key)}))
	require.NoError(t, state.CreateAccount(sess, types.Account{Name: "bob"}))

	tx := signedTransfer(t, chainID, "alice", "bob") // no signatures
	require.Error(t, VerifyAuthorities(sess, tx, chainID))
}

func TestVerifyAuthoritiesThresholdRequiresBothKeys(t *testing.T) {
	sess := newTestSession(t)
	var chainID [32]byte
	key1 := newKey(t)
	key2 := newKey(t)

	twoOfTwo := types.Authority{
		WeightThreshold: 2,
		Entries: []types.AuthorityEntry{
			{Key: key1.PubKey().String(), Weight: 1},
			{Key: key2.PubKey().String(), Weight: 1},
		},
	}
	require.NoError(t, state.CreateAccount(sess, types.Account{Name: "alice", Active: twoOfTwo}))
	require.NoError(t, state.CreateAccount(sess, types.Account{Name: "bob"}))

	onlyOne := signedTransfer(t, chainID, "alice", "bob", key1)
	require.Error(t, VerifyAuthorities(sess, onlyOne, chainID), "single signature should fail a 2-of-2 threshold")

	both := signedTransfer(t, chainID, "alice", "bob", key1, key2)
	require.NoError(t, VerifyAuthorities(sess, both, chainID))
}

func TestVerifyAuthoritiesOwnerEscalatesForActive(t *testing.T) {
	sess := newTestSession(t)
	var chainID [32]byte
	ownerKey := newKey(t)
	activeKey := newKey(t)

	require.NoError(t, state.CreateAccount(sess, types.Account{
		Name:   "alice",
		Owner:  soloAuth(ownerKey),
		Active: soloAuth(activeKey),
	}))
	require.NoError(t, state.CreateAccount(sess, types.Account{Name: "bob"}))

	tx := signedTransfer(t, chainID, "alice", "bob", ownerKey)
	require.NoError(t, VerifyAuthorities(sess, tx, chainID), "owner key should satisfy an active-level requirement")
}

func TestVerifyAuthoritiesRecursesThroughAccountAuth(t *testing.T) {
	sess := newTestSession(t)
	var chainID [32]byte
	custodianKey := newKey(t)

	require.NoError(t, state.CreateAccount(sess, types.Account{Name: "custodian", Active: soloAuth(custodianKey)}))
	require.NoError(t, state.CreateAccount(sess, types.Account{
		Name: "alice",
		Active: types.Authority{
			WeightThreshold: 1,
			Entries:         []types.AuthorityEntry{{Account: "custodian", Weight: 1}},
		},
	}))
	require.NoError(t, state.CreateAccount(sess, types.Account{Name: "bob"}))

	tx := signedTransfer(t, chainID, "alice", "bob", custodianKey)
	require.NoError(t, VerifyAuthorities(sess, tx, chainID), "custodian's active authority should satisfy alice's account-auth")
}

package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePublicKeyRoundTrips(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	encoded := key.PubKey().String()
	require.Contains(t, encoded, KeyPrefix)

	decoded, err := DecodePublicKey(encoded)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().CompressedBytes(), decoded.CompressedBytes())
}

func TestDecodePublicKeyRejectsMissingPrefix(t *testing.T) {
	_, err := DecodePublicKey("not-a-key")
	require.Error(t, err)
}

func TestDecodePublicKeyRejectsBadChecksum(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	encoded := key.PubKey().String()

	tampered := encoded[:len(encoded)-1] + "x"
	if tampered == encoded {
		tampered = encoded[:len(encoded)-1] + "y"
	}
	_, err = DecodePublicKey(tampered)
	require.Error(t, err)
}

func TestSignAndRecoverPublicKey(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], Keccak256([]byte("hello world")))

	sig, err := key.Sign(digest)
	require.NoError(t, err)

	recovered, err := RecoverPublicKey(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().CompressedBytes(), recovered.CompressedBytes())
}

func TestPrivateKeyFromBytesRoundTrips(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.PubKey().CompressedBytes(), restored.PubKey().CompressedBytes())
}

func TestKeccak256Deterministic(t *testing.T) {
	a := Keccak256([]byte("alpha"), []byte("beta"))
	b := Keccak256([]byte("alpha"), []byte("beta"))
	require.Equal(t, a, b)

	c := Keccak256([]byte("alpha"), []byte("gamma"))
	require.NotEqual(t, a, c)
}

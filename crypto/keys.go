package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyPrefix is the chain-level constant prepended to every base58-encoded
// public key, matching spec.md section 6's "Address prefix and key
// encoding" requirement. It is distinct per network the same way the
// teacher distinguishes NHBPrefix/ZNHBPrefix for addresses.
const KeyPrefix = "GBK"

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps a secp256k1 public key.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a new random secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw private key scalar.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// PubKey derives the public key for this private key.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// PrivateKeyFromBytes reconstructs a private key from its raw scalar bytes.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Sign produces a 65-byte compact ECDSA signature (R||S||V) over digest, the
// wire format spec.md section 6 calls for.
func (k *PrivateKey) Sign(digest [32]byte) ([]byte, error) {
	return crypto.Sign(digest[:], k.PrivateKey)
}

// CompressedBytes returns the 33-byte SEC1-compressed public key encoding.
func (k *PublicKey) CompressedBytes() []byte {
	return crypto.CompressPubkey(k.PublicKey)
}

// String renders the public key using the chain's base58-with-prefix
// encoding: KeyPrefix followed by base58(compressed ‖ checksum[:4]), where
// checksum = a single sha256 truncated to 4 bytes (a deterministic,
// dependency-light stand-in for the original ripemd160 checksum; see
// DESIGN.md).
func (k *PublicKey) String() string {
	return EncodePublicKey(k.CompressedBytes())
}

// EncodePublicKey renders a raw compressed public key in base58-with-prefix
// form.
func EncodePublicKey(compressed []byte) string {
	checksum := pubkeyChecksum(compressed)
	payload := append(append([]byte(nil), compressed...), checksum[:4]...)
	return KeyPrefix + base58.Encode(payload)
}

// DecodePublicKey parses a base58-with-prefix encoded public key string back
// into a *PublicKey, validating its checksum.
func DecodePublicKey(s string) (*PublicKey, error) {
	if len(s) <= len(KeyPrefix) || s[:len(KeyPrefix)] != KeyPrefix {
		return nil, fmt.Errorf("crypto: public key missing %q prefix", KeyPrefix)
	}
	payload := base58.Decode(s[len(KeyPrefix):])
	if len(payload) != 37 {
		return nil, fmt.Errorf("crypto: malformed public key payload length %d", len(payload))
	}
	compressed, checksum := payload[:33], payload[33:]
	want := pubkeyChecksum(compressed)
	if !bytesEqual(checksum, want[:4]) {
		return nil, fmt.Errorf("crypto: public key checksum mismatch")
	}
	pub, err := crypto.DecompressPubkey(compressed)
	if err != nil {
		return nil, err
	}
	return &PublicKey{pub}, nil
}

func pubkeyChecksum(compressed []byte) [32]byte {
	return sha256.Sum256(compressed)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RecoverPublicKey recovers the signer's public key from a 65-byte compact
// signature over digest, as used by transaction authority verification
// (spec.md section 4.4 step 3).
func RecoverPublicKey(digest [32]byte, sig []byte) (*PublicKey, error) {
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return nil, err
	}
	return &PublicKey{pub}, nil
}

// Keccak256 is retained from the teacher's hashing idiom for digests that do
// not need to be sha256 (block ids use sha256 per spec.md section 6, while
// auxiliary fingerprints may still use keccak256 for speed).
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

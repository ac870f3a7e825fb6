package types

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// BlockHeader carries everything needed to validate a block's position in
// the chain and its producer slot, independent of its transaction payload
// (section 4.4 step 2 of apply-block).
type BlockHeader struct {
	Previous            [32]byte
	Number              uint64
	Timestamp           int64 // unix seconds, must strictly increase block over block
	Witness             string
	TransactionMerkleRoot [32]byte
	Extensions          []Extension
}

// Block pairs a header with its transactions and the witness signature over
// the header digest.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
	WitnessSignature []byte // 65-byte compact ECDSA over the header digest
}

// Digest hashes the header, independent of the witness signature, the value
// a witness signs and the value used as the block's own id.
func (h *BlockHeader) Digest() ([32]byte, error) {
	encoded, err := rlp.EncodeToBytes(h)
	if err != nil {
		return [32]byte{}, fmt.Errorf("types: encode block header: %w", err)
	}
	return sha256.Sum256(encoded), nil
}

// ID returns the block id: the header digest itself; the block number is not
// folded into it (the "second 32-bit word" referenced in section 4.4 step 4
// is the second 4 bytes of this id).
func (b *Block) ID() ([32]byte, error) {
	return b.Header.Digest()
}

// RefBlockPrefix extracts the 32-bit TaPoS prefix from a block id: the
// second 4-byte word, per section 6's wire format.
func RefBlockPrefix(id [32]byte) uint32 {
	return uint32(id[4]) | uint32(id[5])<<8 | uint32(id[6])<<16 | uint32(id[7])<<24
}

// MerkleRoot computes the transaction merkle root: iterated sha256 pairwise
// hashing over transaction ids, duplicating the final element on odd levels.
func MerkleRoot(txs []Transaction) ([32]byte, error) {
	if len(txs) == 0 {
		return [32]byte{}, nil
	}
	level := make([][32]byte, len(txs))
	for i := range txs {
		id, err := txs[i].ID()
		if err != nil {
			return [32]byte{}, err
		}
		level[i] = id
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(next); i++ {
			h := sha256.New()
			h.Write(level[2*i][:])
			h.Write(level[2*i+1][:])
			copy(next[i][:], h.Sum(nil))
		}
		level = next
	}
	return level[0], nil
}

// MinBlockSize and MaxBlockSize bound a serialized block's byte length, per
// section 6's consensus constants.
const (
	MinBlockSize = 115
	MaxBlockSize = 2 * 1024 * 1024
)

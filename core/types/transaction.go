package types

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// MaxExpirationSeconds bounds how far past head_time a transaction's
// expiration may be set, per section 6's consensus constants.
const MaxExpirationSeconds = 3600

// Extension is a forward-compatible, type-tagged addition to a transaction,
// used for version-vote and hardfork-version-vote announcements (section
// 4.7's generate-block step 5).
type Extension struct {
	Type    uint8
	Payload []byte
}

// Transaction is the Graphene-style multi-operation, multi-signature
// envelope section 6 describes, replacing the teacher's single-operation
// EVM-style Transaction.
type Transaction struct {
	RefBlockNum    uint16
	RefBlockPrefix uint32
	Expiration     int64 // unix seconds
	Ops            []OpEnvelope
	Extensions     []Extension
	Signatures     [][]byte // each a 65-byte compact ECDSA signature
}

// txBody is the structure signed over: everything except the signatures
// themselves.
type txBody struct {
	RefBlockNum    uint16
	RefBlockPrefix uint32
	Expiration     int64
	Ops            []OpEnvelope
	Extensions     []Extension
}

// SigningDigest computes sha256(chain_id ‖ serialize(transaction_body)), the
// digest every signature in Signatures must be over (section 6).
func (t *Transaction) SigningDigest(chainID [32]byte) ([32]byte, error) {
	body := txBody{
		RefBlockNum:    t.RefBlockNum,
		RefBlockPrefix: t.RefBlockPrefix,
		Expiration:     t.Expiration,
		Ops:            t.Ops,
		Extensions:     t.Extensions,
	}
	encoded, err := rlp.EncodeToBytes(&body)
	if err != nil {
		return [32]byte{}, fmt.Errorf("types: encode transaction body: %w", err)
	}
	h := sha256.New()
	h.Write(chainID[:])
	h.Write(encoded)
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// ID is the transaction id used for dedupe and block-summary/TaPoS lookups:
// sha256 of the full serialized transaction (including signatures).
func (t *Transaction) ID() ([32]byte, error) {
	encoded, err := rlp.EncodeToBytes(t)
	if err != nil {
		return [32]byte{}, fmt.Errorf("types: encode transaction: %w", err)
	}
	return sha256.Sum256(encoded), nil
}

// Validate runs every operation's static Validate, plus transaction-level
// structural checks (section 4.4 step 1).
func (t *Transaction) Validate() error {
	if len(t.Ops) == 0 {
		return fmt.Errorf("types: transaction has no operations")
	}
	if len(t.Ops) > 256 {
		return fmt.Errorf("types: transaction has too many operations")
	}
	postingAuthSeen := false
	activeOrOwnerSeen := false
	for i, env := range t.Ops {
		op, err := DecodeOperation(env)
		if err != nil {
			return fmt.Errorf("types: operation %d: %w", i, err)
		}
		if err := op.Validate(); err != nil {
			return fmt.Errorf("types: operation %d (%s): %w", i, env.Type, err)
		}
		for _, auth := range op.RequiredAuths() {
			switch auth.Level {
			case AuthPosting:
				postingAuthSeen = true
			case AuthActive, AuthOwner:
				activeOrOwnerSeen = true
			}
		}
	}
	if postingAuthSeen && activeOrOwnerSeen {
		return fmt.Errorf("types: a posting-authority operation cannot share a transaction with an active/owner-authority operation")
	}
	return nil
}

// Operations decodes every envelope into its concrete Operation.
func (t *Transaction) Operations() ([]Operation, error) {
	ops := make([]Operation, len(t.Ops))
	for i, env := range t.Ops {
		op, err := DecodeOperation(env)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return ops, nil
}

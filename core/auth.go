package core

import (
	"fmt"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/crypto"
	"gamebankcore/objectstore"
)

// maxAuthDepth bounds how deep an account-authority chain (an Authority
// entry naming another account rather than a raw key) may recurse, per
// section 4.4 step 3's "recursively resolving account-auths up to a
// bounded depth".
const maxAuthDepth = 6

// VerifyAuthorities recovers the signer key for every signature in tx,
// then for each RequiredAuth collected from tx's operations, checks that
// the recovered keys satisfy that account's threshold authority at the
// required level or higher (section 4.4 step 3): a higher authority signing
// satisfies a lower one (see satisfiesAuthority). The cross-operation
// posting/active exclusivity check lives in Transaction.Validate.
func VerifyAuthorities(rw objectstore.RW, tx *types.Transaction, chainID [32]byte) error {
	digest, err := tx.SigningDigest(chainID)
	if err != nil {
		return fmt.Errorf("core: compute signing digest: %w", err)
	}
	signers := make(map[string]bool, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		pub, err := crypto.RecoverPublicKey(digest, sig)
		if err != nil {
			return fmt.Errorf("core: signature %d: recover public key: %w", i, err)
		}
		signers[pub.String()] = true
	}

	ops, err := tx.Operations()
	if err != nil {
		return err
	}
	seen := map[string]types.AuthLevel{}
	for _, op := range ops {
		for _, req := range op.RequiredAuths() {
			if req.Level == types.AuthNone {
				continue
			}
			if cur, ok := seen[req.Account]; ok && cur >= req.Level {
				continue
			}
			seen[req.Account] = req.Level
		}
	}
	for account, level := range seen {
		ok, err := satisfiesAuthority(rw, account, level, signers, 0)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("core: missing required %s authority for %q", authLevelName(level), account)
		}
	}
	return nil
}

func authLevelName(l types.AuthLevel) string {
	switch l {
	case types.AuthOwner:
		return "owner"
	case types.AuthActive:
		return "active"
	case types.AuthPosting:
		return "posting"
	default:
		return "none"
	}
}

// satisfiesAuthority reports whether the recovered signer keys (or, through
// recursive account-auth resolution, some sub-account's own satisfied
// authority) meet or exceed account's weight threshold at level. A higher
// authority always satisfies a lower one: owner satisfies active and
// posting, active satisfies posting (graphene-style authority escalation).
func satisfiesAuthority(rw objectstore.RW, account string, level types.AuthLevel, signers map[string]bool, depth int) (bool, error) {
	if depth > maxAuthDepth {
		return false, nil
	}
	a, ok, err := state.GetAccount(rw, account)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("core: unknown account %q in required authority", account)
	}

	// Try the requested level, then escalate to owner if lower levels fail,
	// since a higher-weight authority signing is always sufficient.
	for _, candidate := range escalationChain(level) {
		auth := authorityFor(a, candidate)
		satisfied, err := weightSatisfied(rw, auth, signers, depth)
		if err != nil {
			return false, err
		}
		if satisfied {
			return true, nil
		}
	}
	return false, nil
}

func escalationChain(level types.AuthLevel) []types.AuthLevel {
	switch level {
	case types.AuthPosting:
		return []types.AuthLevel{types.AuthPosting, types.AuthActive, types.AuthOwner}
	case types.AuthActive:
		return []types.AuthLevel{types.AuthActive, types.AuthOwner}
	default:
		return []types.AuthLevel{types.AuthOwner}
	}
}

func authorityFor(a types.Account, level types.AuthLevel) types.Authority {
	switch level {
	case types.AuthPosting:
		return a.Posting
	case types.AuthActive:
		return a.Active
	default:
		return a.Owner
	}
}

// weightSatisfied sums the weight of every entry in auth whose key matches a
// recovered signer, or whose named sub-account itself satisfies its own
// active authority, and compares the total against auth.WeightThreshold.
// An authority with a zero threshold (none configured) is never satisfied.
func weightSatisfied(rw objectstore.RW, auth types.Authority, signers map[string]bool, depth int) (bool, error) {
	if auth.WeightThreshold == 0 {
		return false, nil
	}
	var total uint32
	for _, e := range auth.Entries {
		if e.Key != "" {
			if signers[e.Key] {
				total += uint32(e.Weight)
			}
			continue
		}
		if e.Account == "" {
			continue
		}
		ok, err := satisfiesAuthority(rw, e.Account, types.AuthActive, signers, depth+1)
		if err != nil {
			return false, err
		}
		if ok {
			total += uint32(e.Weight)
		}
		if total >= auth.WeightThreshold {
			return true, nil
		}
	}
	return total >= auth.WeightThreshold, nil
}

// Package mempool holds the pending-transaction pool and the
// back-pressure policy applied when it grows beyond its configured
// capacity (section 5: "the pending pool... newly arriving transactions
// with weakest priority... may be rejected at the controller boundary").
package mempool

import (
	"math/big"
	"sort"
	"sync"

	"gamebankcore/core/state"
	"gamebankcore/core/types"
	"gamebankcore/objectstore"
)

// entry pairs a pending transaction with the priority weight it was
// admitted under, so the pool can be re-sorted cheaply on eviction
// without re-deriving stake from the store every time.
type entry struct {
	tx     *types.Transaction
	id     [32]byte
	weight *big.Int
}

// Pool is the bounded pending-transaction pool. Transactions returns its
// entries ordered by descending priority weight; once the pool is at capacity,
// an arriving transaction is admitted only if its weight exceeds the
// pool's current minimum, which is then evicted.
type Pool struct {
	mu       sync.Mutex
	capacity int
	entries  []entry
	byID     map[[32]byte]int
}

// NewPool constructs a pool that holds at most capacity transactions.
// A non-positive capacity means unbounded.
func NewPool(capacity int) *Pool {
	return &Pool{capacity: capacity, byID: make(map[[32]byte]int)}
}

// Len reports the number of transactions currently pending.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Weight computes a transaction's scheduling priority: the sum of
// effective vesting stake (section 4.5's witness-vote weight measure)
// across every account named in the transaction's required authorities.
// Transactions naming higher-stake accounts are preferred when the pool
// must shed load, mirroring a voting-power-weighted admission policy.
func Weight(rw objectstore.RW, tx *types.Transaction) (*big.Int, error) {
	total := new(big.Int)
	if tx == nil {
		return total, nil
	}
	ops, err := tx.Operations()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, op := range ops {
		for _, req := range op.RequiredAuths() {
			if req.Account == "" || seen[req.Account] {
				continue
			}
			seen[req.Account] = true
			a, ok, err := state.GetAccount(rw, req.Account)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			total.Add(total, effectiveStake(a))
		}
	}
	return total, nil
}

func effectiveStake(a types.Account) *big.Int {
	stake := new(big.Int)
	if a.VestingShares.Amount != nil {
		stake.Add(stake, a.VestingShares.Amount)
	}
	if a.ReceivedVestingShares.Amount != nil {
		stake.Add(stake, a.ReceivedVestingShares.Amount)
	}
	if a.DelegatedVestingShares.Amount != nil {
		stake.Sub(stake, a.DelegatedVestingShares.Amount)
	}
	for _, p := range a.ProxiedVSFShares {
		if p != nil {
			stake.Add(stake, p)
		}
	}
	if stake.Sign() < 0 {
		stake.SetInt64(0)
	}
	return stake
}

// ErrRejected is returned by Admit when the pool is full and the
// arriving transaction's priority does not exceed the pool's weakest
// pending entry.
type ErrRejected struct{ Reason string }

func (e *ErrRejected) Error() string { return "mempool: rejected: " + e.Reason }

// Admit inserts tx into the pool, computing its priority weight against
// rw. If the pool is at capacity, the arriving transaction is compared
// against the pool's current minimum-weight entry: the weaker of the two
// is evicted/rejected. Returns the id of any transaction evicted to make
// room, or a zero id if none was.
func (p *Pool) Admit(rw objectstore.RW, tx *types.Transaction, id [32]byte) (evicted [32]byte, err error) {
	weight, err := Weight(rw, tx)
	if err != nil {
		return evicted, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.byID[id]; dup {
		return evicted, &ErrRejected{Reason: "duplicate"}
	}

	if p.capacity > 0 && len(p.entries) >= p.capacity {
		worstIdx := p.worstLocked()
		if worstIdx < 0 || p.entries[worstIdx].weight.Cmp(weight) >= 0 {
			return evicted, &ErrRejected{Reason: "pool full: insufficient priority"}
		}
		evicted = p.entries[worstIdx].id
		p.removeAtLocked(worstIdx)
	}

	p.entries = append(p.entries, entry{tx: tx, id: id, weight: weight})
	p.byID[id] = len(p.entries) - 1
	p.reindexLocked()
	return evicted, nil
}

// Remove drops a transaction from the pool, e.g. once it has been
// included in an applied block.
func (p *Pool) Remove(id [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.byID[id]
	if !ok {
		return
	}
	p.removeAtLocked(idx)
	p.reindexLocked()
}

// Transactions returns the pending transactions ordered by descending
// priority weight, the order the controller should offer them to block
// production in.
func (p *Pool) Transactions() []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	sorted := append([]entry(nil), p.entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].weight.Cmp(sorted[j].weight) > 0
	})
	out := make([]*types.Transaction, len(sorted))
	for i, e := range sorted {
		out[i] = e.tx
	}
	return out
}

func (p *Pool) worstLocked() int {
	if len(p.entries) == 0 {
		return -1
	}
	worst := 0
	for i := 1; i < len(p.entries); i++ {
		if p.entries[i].weight.Cmp(p.entries[worst].weight) < 0 {
			worst = i
		}
	}
	return worst
}

func (p *Pool) removeAtLocked(idx int) {
	delete(p.byID, p.entries[idx].id)
	p.entries = append(p.entries[:idx], p.entries[idx+1:]...)
}

func (p *Pool) reindexLocked() {
	for i, e := range p.entries {
		p.byID[e.id] = i
	}
}

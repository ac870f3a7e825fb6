package contract

import (
	"fmt"

	"golang.org/x/time/rate"
)

// StepLimiter bounds a single script invocation's host-call count. Wasmer's
// fuel-based metering is out of scope (section 4.6 specifies only the host
// interface), so the budget is enforced by counting host calls instead of
// instructions — sufficient to stop a script that loops calling back into
// the sandbox, not one that spins purely in WASM-local arithmetic.
type StepLimiter struct {
	limiter *rate.Limiter
	budget  int
	used    int
}

// NewStepLimiter allocates a limiter good for budget host calls across this
// invocation, backed by a token bucket of the same size that refills at
// refillPerSecond. Each invocation builds its own limiter, so no budget
// carries over from one invocation to the next.
func NewStepLimiter(budget int, refillPerSecond float64) *StepLimiter {
	return &StepLimiter{
		limiter: rate.NewLimiter(rate.Limit(refillPerSecond), budget),
		budget:  budget,
	}
}

// Step consumes one unit of budget, failing the moment a script exceeds its
// allotted step count — the host-side trap section 4.6 requires.
func (s *StepLimiter) Step() error {
	s.used++
	if s.used > s.budget {
		return fmt.Errorf("contract: step budget of %d host calls exceeded", s.budget)
	}
	if !s.limiter.Allow() {
		return fmt.Errorf("contract: step rate exceeded")
	}
	return nil
}

// Used reports how many steps this invocation has consumed so far.
func (s *StepLimiter) Used() int { return s.used }

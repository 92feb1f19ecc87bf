package resilience

import "sync"

// defaultBudgetMax is the consecutive-error allowance used when no maximum
// is configured.
const defaultBudgetMax = 3

// Budget tracks consecutive handled errors against a fixed allowance. It is
// safe for concurrent use.
//
// Unlike [CircuitBreaker], a Budget never gates calls; it only counts. The
// caller decides what exhaustion means: the assistant loop reinitialises
// its audio pipeline and resets the budget.
type Budget struct {
	max int

	mu   sync.Mutex
	used int
}

// NewBudget creates a budget allowing max consecutive errors before
// [Budget.Exhausted] reports true. max <= 0 falls back to 3.
func NewBudget(max int) *Budget {
	if max <= 0 {
		max = defaultBudgetMax
	}
	return &Budget{max: max}
}

// Record counts one handled error.
func (b *Budget) Record() {
	b.mu.Lock()
	b.used++
	b.mu.Unlock()
}

// Exhausted reports whether the allowance is used up.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used >= b.max
}

// Reset clears the counter. Called after a successful cycle or a pipeline
// reinitialisation.
func (b *Budget) Reset() {
	b.mu.Lock()
	b.used = 0
	b.mu.Unlock()
}

// Used returns the number of errors recorded since the last reset.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

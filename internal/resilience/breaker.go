package resilience

import "sync"

// Breaker trips after a run of consecutive failures. The enrichment pool
// uses it to stop hammering the source once every access strategy is being
// challenge-blocked in a row, rather than burning the whole work queue.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	run       int
	tripped   bool
}

// NewBreaker returns a breaker tripping after threshold consecutive
// failures. A threshold <= 0 disables tripping.
func NewBreaker(threshold int) *Breaker {
	return &Breaker{threshold: threshold}
}

// Success resets the failure run.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.run = 0
}

// Failure records one failure and reports whether the breaker is now
// tripped.
func (b *Breaker) Failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.run++
	if b.threshold > 0 && b.run >= b.threshold {
		b.tripped = true
	}
	return b.tripped
}

// Tripped reports whether the threshold has been crossed.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

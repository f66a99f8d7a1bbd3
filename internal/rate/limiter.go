// Package rate provides the rate-limited warning counter permitted by the
// concurrency design. There is no package-level instance: each component
// that logs rate-limited warnings builds its own Limiter at construction,
// like every other dependency in this repository.
package rate

import "sync/atomic"

// Limiter allows the first n occurrences of some recurring condition
// through and then suppresses the rest. It is an atomic counter, safe for
// concurrent use without locking.
type Limiter struct {
	count atomic.Int32
	limit int32
}

// NewLimiter returns a Limiter that allows the first limit calls to Allow
// to succeed.
func NewLimiter(limit int32) *Limiter {
	return &Limiter{limit: limit}
}

// Allow reports whether the caller should act (e.g. log a warning) this
// time, and increments the internal count regardless of the outcome.
func (l *Limiter) Allow() bool {
	n := l.count.Add(1)
	return n <= l.limit
}

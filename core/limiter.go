package core

import "sync"

// IterationLimiter bounds the number of model/tool iterations a single
// behavior loop may perform, independent of communicate depth.
type IterationLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewIterationLimiter creates a limiter allowing max iterations.
// If max == 0, the limiter is unbounded.
func NewIterationLimiter(max int) *IterationLimiter {
	return &IterationLimiter{max: max}
}

// Increment counts one iteration and returns ErrMaxIterations once the
// configured limit is exceeded.
func (l *IterationLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return MaxIterationsError(l.max)
	}

	return nil
}

// Count returns the number of iterations consumed so far.
func (l *IterationLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many iterations are left, or -1 when unbounded.
func (l *IterationLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1
	}

	return l.max - l.count
}

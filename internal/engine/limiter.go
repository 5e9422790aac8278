package engine

import "context"

// Limiter bounds how many sentiment lookups run at once. A Limiter belongs to
// one selection call; SelectMarket builds a fresh one every time.
type Limiter struct {
	sem chan struct{}
}

// NewLimiter returns a limiter admitting n concurrent holders (minimum 1).
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() { <-l.sem }

// Cap is the number of concurrent holders allowed.
func (l *Limiter) Cap() int { return cap(l.sem) }

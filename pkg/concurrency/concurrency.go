// Package concurrency provides the bounded-parallelism and shared-state
// primitives the resolver and installer use: a weighted semaphore that caps
// how many registry fetches or filesystem writes run at once, and an
// exclusive-write wrapper for state that many goroutines read but only one
// may mutate at a time.
package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Default bounds for the two places clay applies backpressure: ordinary
// installs cap concurrent tarball fetches at DefaultFetchLimit; a
// multi-root resolution, which is mostly waiting on network round trips
// rather than writing to disk, is allowed a higher ceiling.
const (
	DefaultFetchLimit      = 8
	DefaultResolutionLimit = 12
)

// Limiter bounds the number of concurrent holders of a resource.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter returns a Limiter that admits at most n concurrent holders.
func NewLimiter(n int64) *Limiter {
	return &Limiter{sem: semaphore.NewWeighted(n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release frees a previously acquired slot.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Run acquires a slot, runs fn, and releases the slot, propagating fn's
// error alongside any context error from Acquire.
func (l *Limiter) Run(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

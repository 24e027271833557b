// Package ratex provides a self-adjusting rate limiter the registry client
// uses to back off when a registry starts returning transport errors (5xx,
// connection resets) and to speed back up once it recovers.
//
// Unlike a plain exponential backoff, permits here are funneled through one
// shared channel (the installer's download limiter admits up to
// concurrency.DefaultFetchLimit callers at once, all of whom call Wait on
// the same *BackoffLimiter through the shared registry client). Two adaptations follow directly from that
// fan-in: the period is clamped at a maximum so a sustained outage degrades
// bounded request spacing rather than an ever-growing one that could stall
// an entire multi-package install indefinitely, and each tick is jittered
// so the pool of waiting callers doesn't release in lockstep and re-hit a
// struggling registry in synchronized bursts.
package ratex

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// maxPeriodMultiple bounds how many multiples of the configured minimum the
// period is allowed to climb to under repeated Backoff calls.
const maxPeriodMultiple = 20

// jitterFraction is the +/- fraction of the current period applied to each
// tick's sleep, so concurrent waiters don't all wake at once.
const jitterFraction = 0.2

// BackoffLimiter is a threadsafe exponential backoff rate limiter.
type BackoffLimiter struct {
	mu            sync.Mutex
	currentPeriod time.Duration
	minimum       time.Duration
	maximum       time.Duration
	ch            chan struct{}
}

// NewBackoffLimiter returns a limiter that never waits less than minimum
// between permits, nor more than maxPeriodMultiple times minimum.
func NewBackoffLimiter(minimum time.Duration) *BackoffLimiter {
	l := &BackoffLimiter{
		currentPeriod: minimum,
		minimum:       minimum,
		maximum:       minimum * maxPeriodMultiple,
		ch:            make(chan struct{}),
	}
	go func() {
		for {
			l.tick()
		}
	}()
	return l
}

func (l *BackoffLimiter) tick() {
	l.mu.Lock()
	duration := l.currentPeriod
	l.mu.Unlock()
	time.Sleep(jitter(duration))
	l.ch <- struct{}{}
}

// jitter spreads d by +/- jitterFraction so callers queued on the same
// limiter don't all resume on the same tick.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	offset := (rand.Float64()*2 - 1) * jitterFraction
	return time.Duration(float64(d) * (1 + offset))
}

// Wait blocks until the limiter permits another request. If ctx is done
// first, Wait returns ctx.Err().
func (l *BackoffLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
		return nil
	}
}

// Backoff increases the period by 33%, taking effect from the next permit,
// clamped so it never exceeds maxPeriodMultiple times the configured
// minimum. Call this after a registry request fails with a transport error.
func (l *BackoffLimiter) Backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentPeriod = min(l.currentPeriod*4/3, l.maximum)
}

// Success decreases the period by 10%, bounded below by minimum. Call this
// after a registry request succeeds.
func (l *BackoffLimiter) Success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentPeriod = max(l.currentPeriod*9/10, l.minimum)
}

// CurrentPeriod returns the limiter's current configured wait period
// (before per-tick jitter is applied).
func (l *BackoffLimiter) CurrentPeriod() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentPeriod
}

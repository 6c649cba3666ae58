// Package ratelimit spaces navigations per retailer host so concurrent
// checks against the same vendor do not arrive back to back.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// HostLimiter enforces a jittered minimum gap between navigations to the
// same host. Different hosts never block each other.
type HostLimiter struct {
	minGap time.Duration
	maxGap time.Duration

	mu   sync.Mutex
	next map[string]time.Time

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHostLimiter builds a limiter that keeps between minGap and maxGap
// between visits to one host. minGap <= 0 disables waiting entirely.
func NewHostLimiter(minGap, maxGap time.Duration) *HostLimiter {
	if maxGap < minGap {
		maxGap = minGap
	}
	return &HostLimiter{
		minGap: minGap,
		maxGap: maxGap,
		next:   make(map[string]time.Time),
		sleep:  sleepCtx,
	}
}

// Wait blocks until the caller may navigate to host, or until ctx is done.
// The slot is reserved under the lock, so concurrent callers for the same
// host queue up one gap apart instead of stampeding when the lock frees.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.minGap <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	at := l.next[host]
	if at.Before(now) {
		at = now
	}
	l.next[host] = at.Add(l.gap())
	l.mu.Unlock()

	if wait := time.Until(at); wait > 0 {
		return l.sleep(ctx, wait)
	}
	return nil
}

func (l *HostLimiter) gap() time.Duration {
	if l.maxGap == l.minGap {
		return l.minGap
	}
	return l.minGap + time.Duration(rand.Int63n(int64(l.maxGap-l.minGap)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

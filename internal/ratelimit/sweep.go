package ratelimit

import (
	"context"
	"time"
)

// Run starts the background sweep that evicts buckets idle for longer than 2 × the configured cleanup interval, so
// memory does not grow unboundedly for clients that stop sending requests. It blocks until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(time.Now())
		}
	}
}

// sweep removes every bucket whose last refill predates the staleness threshold.
func (l *Limiter) sweep(now time.Time) {
	threshold := 2 * l.cfg.CleanupInterval

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, b := range l.buckets {
		_, lastRefill := b.snapshot()
		if now.Sub(lastRefill) > threshold {
			delete(l.buckets, id)
		}
	}
}

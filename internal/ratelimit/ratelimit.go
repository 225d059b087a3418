// Package ratelimit implements the gateway's per-client token-bucket throttle (spec §4.6, C10). The fiber/v3
// limiter middleware the teacher wires into cmd/uncord/main.go covers the common case but exposes no way to
// inspect or reset a single bucket's state, which the spec's boundary tests require, so the bucket math is
// reimplemented directly here instead of wrapping the middleware.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/ferror"
)

// Config tunes the limiter. RequestsPerMinute and BurstSize follow spec §4.6's TokenBucket model; CleanupInterval
// governs how often the background sweep runs and, doubled, how stale a bucket must be before it is evicted.
type Config struct {
	RequestsPerMinute float64
	BurstSize         float64
	CleanupInterval   time.Duration
}

// DefaultConfig returns the limiter defaults used by the spec's rate-limit scenario (60 req/min, burst 10).
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
	}
}

// refillRate returns the bucket's per-second token refill rate.
func (c Config) refillRate() float64 {
	return c.RequestsPerMinute / 60
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// refill applies elapsed-time refill under the bucket's own lock and reports whether n tokens were available and
// consumed.
func (b *bucket) take(cfg Config, n float64, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(cfg.BurstSize, b.tokens+elapsed*cfg.refillRate())
		b.lastRefill = now
	}

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

func (b *bucket) snapshot() (tokens float64, lastRefill time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens, b.lastRefill
}

// Limiter holds one token bucket per client identity (IP or authenticated user UUID).
type Limiter struct {
	cfg Config
	log zerolog.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// New creates a Limiter. Callers should run Sweep in a background goroutine to bound memory for ephemeral clients.
func New(cfg Config, log zerolog.Logger) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	return &Limiter{
		cfg:     cfg,
		log:     log.With().Str("component", "ratelimit").Logger(),
		buckets: make(map[string]*bucket),
	}
}

func (l *Limiter) getOrCreate(clientID string, now time.Time) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[clientID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[clientID]; ok {
		return b
	}
	b = &bucket{tokens: l.cfg.BurstSize, lastRefill: now}
	l.buckets[clientID] = b
	return b
}

// AllowN reports whether n tokens are available for clientID, consuming them if so.
func (l *Limiter) AllowN(clientID string, n float64) bool {
	b := l.getOrCreate(clientID, time.Now())
	return b.take(l.cfg, n, time.Now())
}

// Allow reports whether a single token is available for clientID, consuming it if so.
func (l *Limiter) Allow(clientID string) bool {
	return l.AllowN(clientID, 1)
}

// Check is the adapter-facing entry point: it returns nil when the request is admitted and a ferror.KindRateLimit
// error otherwise. An empty clientID fails open (allowed) and is logged, since the caller could not identify the
// requester to throttle it; this is the only fail-open path spec §4.6 calls for, panics aside.
func (l *Limiter) Check(clientID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Warn().Interface("panic", r).Msg("rate limiter check panicked, failing open")
			err = nil
		}
	}()

	if clientID == "" {
		l.log.Warn().Msg("rate limit check called without a client identity, failing open")
		return nil
	}
	if l.Allow(clientID) {
		return nil
	}
	return ferror.New(ferror.KindRateLimit, "rate limit exceeded")
}

// Snapshot exposes a bucket's current token count and last refill time, for tests and the metrics endpoint. ok is
// false if clientID has no bucket yet.
func (l *Limiter) Snapshot(clientID string) (tokens float64, lastRefill time.Time, ok bool) {
	l.mu.RLock()
	b, ok := l.buckets[clientID]
	l.mu.RUnlock()
	if !ok {
		return 0, time.Time{}, false
	}
	tokens, lastRefill = b.snapshot()
	return tokens, lastRefill, true
}

// BucketCount reports how many client buckets are currently tracked, for the gateway metrics endpoint.
func (l *Limiter) BucketCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

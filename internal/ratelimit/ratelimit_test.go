package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/ferror"
)

func newTestLimiter(cfg Config) *Limiter {
	return New(cfg, zerolog.Nop())
}

func TestAllowAdmitsUpToBurstSize(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 10, CleanupInterval: time.Minute})

	for i := 0; i < 10; i++ {
		if !l.Allow("client-1") {
			t.Fatalf("request %d: Allow() = false, want true within burst size", i+1)
		}
	}
	if l.Allow("client-1") {
		t.Error("11th request: Allow() = true, want false once burst is exhausted")
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})

	if !l.Allow("client-1") {
		t.Fatal("first Allow() = false, want true")
	}
	if l.Allow("client-1") {
		t.Fatal("second immediate Allow() = true, want false")
	}

	b := l.getOrCreate("client-1", time.Now())
	b.mu.Lock()
	b.lastRefill = b.lastRefill.Add(-2 * time.Second)
	b.mu.Unlock()

	if !l.Allow("client-1") {
		t.Error("Allow() after refill window = false, want true")
	}
}

func TestAllowNRejectsMoreThanAvailable(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 5, CleanupInterval: time.Minute})

	if l.AllowN("client-1", 6) {
		t.Error("AllowN(6) = true with burst size 5, want false")
	}
	if !l.AllowN("client-1", 5) {
		t.Error("AllowN(5) = false with burst size 5 and no prior consumption, want true")
	}
}

func TestBurstSizeZeroAdmitsNothing(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 0, CleanupInterval: time.Minute})

	if l.Allow("client-1") {
		t.Error("Allow() = true with burst size 0, want false")
	}
}

func TestCheckReturnsRateLimitErrorWhenExhausted(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})

	if err := l.Check("client-1"); err != nil {
		t.Fatalf("first Check() error = %v, want nil", err)
	}
	err := l.Check("client-1")
	if !ferror.Is(err, ferror.KindRateLimit) {
		t.Errorf("second Check() error = %v, want KindRateLimit", err)
	}
}

func TestCheckFailsOpenWithoutClientID(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 0, CleanupInterval: time.Minute})

	if err := l.Check(""); err != nil {
		t.Errorf("Check(\"\") error = %v, want nil (fail open)", err)
	}
}

func TestDistinctClientsHaveIndependentBuckets(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})

	if !l.Allow("client-a") {
		t.Fatal("client-a first Allow() = false, want true")
	}
	if !l.Allow("client-b") {
		t.Error("client-b Allow() = false, want true (independent bucket from client-a)")
	}
}

func TestSnapshotReportsBucketState(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 10, CleanupInterval: time.Minute})

	if _, _, ok := l.Snapshot("client-1"); ok {
		t.Error("Snapshot() ok = true before any request, want false")
	}

	l.Allow("client-1")
	tokens, lastRefill, ok := l.Snapshot("client-1")
	if !ok {
		t.Fatal("Snapshot() ok = false after a request, want true")
	}
	if tokens != 9 {
		t.Errorf("Snapshot() tokens = %v, want 9", tokens)
	}
	if lastRefill.IsZero() {
		t.Error("Snapshot() lastRefill is zero, want a recent timestamp")
	}
}

func TestBucketCount(t *testing.T) {
	t.Parallel()
	l := newTestLimiter(DefaultConfig())

	l.Allow("client-a")
	l.Allow("client-b")
	l.Allow("client-a")

	if got := l.BucketCount(); got != 2 {
		t.Errorf("BucketCount() = %d, want 2", got)
	}
}

func TestDefaultConfigMatchesRateLimitScenario(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if cfg.RequestsPerMinute != 60 {
		t.Errorf("RequestsPerMinute = %v, want 60", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 10 {
		t.Errorf("BurstSize = %v, want 10", cfg.BurstSize)
	}
}

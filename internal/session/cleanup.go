package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCleanupInterval and DefaultCleanupAge mirror the spec's periodic maintenance defaults.
const (
	DefaultCleanupInterval = 24 * time.Hour
	DefaultCleanupAge      = 30 * 24 * time.Hour
)

// RunCleanup runs one maintenance pass: deleting expired rows and purging revoked rows older than ageDays. Errors
// are logged, not returned, since this is meant to run on a ticker for the lifetime of the process.
func RunCleanup(ctx context.Context, store Store, ageDays time.Duration, log zerolog.Logger) {
	expired, err := store.DeleteExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("session cleanup: delete expired failed")
	} else if expired > 0 {
		log.Info().Int64("count", expired).Msg("session cleanup: deleted expired sessions")
	}

	cutoff := time.Now().UTC().Add(-ageDays)
	purged, err := store.PurgeRevokedOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("session cleanup: purge revoked failed")
	} else if purged > 0 {
		log.Info().Int64("count", purged).Msg("session cleanup: purged old revoked sessions")
	}
}

// RunCleanupLoop runs RunCleanup on a ticker every interval until ctx is cancelled.
func RunCleanupLoop(ctx context.Context, store Store, interval, ageDays time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RunCleanup(ctx, store, ageDays, log)
		}
	}
}

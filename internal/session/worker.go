package session

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner evicts aged records and reports how many were removed. The
// analysis engine implements it alongside the session store.
type Cleaner interface {
	Cleanup(maxAge time.Duration) int
}

// Cleanup implements Cleaner for the session store.
func (s *Store) Cleanup(maxAge time.Duration) int {
	return s.CleanupOldSessions(maxAge)
}

// StartCleanupWorker runs a background goroutine that evicts sessions and
// analyses untouched for longer than maxAge. It exits when ctx is
// cancelled.
func StartCleanupWorker(ctx context.Context, maxAge, interval time.Duration, cleaners ...Cleaner) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Cleanup worker started", "interval", interval, "max_age", maxAge)

		for {
			select {
			case <-ticker.C:
				removed := 0
				for _, c := range cleaners {
					removed += c.Cleanup(maxAge)
				}
				if removed > 0 {
					slog.Info("Cleanup worker evicted aged records", "count", removed)
				}
			case <-ctx.Done():
				slog.Info("Cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

package batch

import (
	"context"
	"log/slog"
	"time"
)

// StartWorker runs a background goroutine that periodically sweeps all live
// sessions for due batch saves. It exits when ctx is cancelled.
func StartWorker(ctx context.Context, c *Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Batch save worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				c.CheckAndSaveAll(ctx)
			case <-ctx.Done():
				slog.Info("Batch save worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

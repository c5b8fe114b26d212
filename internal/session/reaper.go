package session

import (
	"context"
	"log/slog"
	"time"
)

// StartReaper runs a background goroutine that periodically destroys idle
// sessions past the pool's idle timeout. It stops when ctx is cancelled.
func StartReaper(ctx context.Context, pool *Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session reaper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				if n := pool.Reap(ctx); n > 0 {
					slog.Info("Session reaper pass completed", "reaped", n)
				}
			case <-ctx.Done():
				slog.Info("Session reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	pollTimeoutSecs = 30
	pollRetryDelay  = 3 * time.Second
)

// Poll long-polls the Bot API for updates until ctx is cancelled. Updates
// are handled concurrently; per-user ordering is the conversation layer's
// concern, not the transport's.
func (b *Bot) Poll(ctx context.Context) {
	slog.Info("Polling for updates")

	var offset int64
	for {
		updates, err := b.api.GetUpdates(ctx, offset, pollTimeoutSecs)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Polling stopped", "reason", ctx.Err())
				return
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				slog.Warn("getUpdates failed, backing off", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			go b.process(upd)
		}
	}
}

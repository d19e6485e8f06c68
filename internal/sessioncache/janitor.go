package sessioncache

import (
	"context"
	"log/slog"
	"time"
)

// Pruner is satisfied by *Cache.
type Pruner interface {
	Prune() int
}

// RunJanitor calls Prune every interval until ctx is done.
func RunJanitor(ctx context.Context, p Pruner, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Prune(); n > 0 {
				logger.Debug("session cache pruned", slog.Int("removed", n))
			}
		}
	}
}

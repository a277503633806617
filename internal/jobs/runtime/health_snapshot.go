package runtime

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"railwatch/internal/proxypool"
)

const (
	DefaultSnapshotInterval = time.Minute
	finalSnapshotTimeout    = 5 * time.Second
)

type SnapshotSource interface {
	Snapshot() []proxypool.Health
}

type SnapshotSaver func(ctx context.Context, entries []proxypool.Health) error

// StartHealthSnapshotLoop persists the pool every interval and once more when
// ctx is cancelled. It blocks until that final save returns.
func StartHealthSnapshotLoop(ctx context.Context, source SnapshotSource, save SnapshotSaver, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}

	persist := func(ctx context.Context) {
		entries := source.Snapshot()
		if len(entries) == 0 {
			return
		}
		if err := save(ctx, entries); err != nil {
			log.Error("Failed to persist proxy health snapshot", "entries", len(entries), "error", err)
			return
		}
		log.Debug("Persisted proxy health snapshot", "entries", len(entries))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSnapshotTimeout)
			persist(finalCtx)
			cancel()
			return
		case <-ticker.C:
			persist(ctx)
		}
	}
}

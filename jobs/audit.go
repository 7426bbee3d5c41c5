package jobs

import (
	"context"
	"log/slog"
)

type spillFlusher interface {
	FlushSpill(ctx context.Context) (int, error)
}

// AuditSpillFlush replays audit entries that could not be written when
// their operation ran.
func AuditSpillFlush(f spillFlusher) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := f.FlushSpill(ctx)
		if n > 0 {
			slog.Info("replayed spilled audit entries", "component", "jobs", "count", n)
		}
		return err
	}
}

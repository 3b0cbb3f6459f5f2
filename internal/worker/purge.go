package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/slot-booking/pkg/logger"
)

// Purger removes slots that have already ended.
type Purger interface {
	PurgePast(ctx context.Context) (int64, error)
}

type PurgeWorker struct {
	purger   Purger
	interval time.Duration
	logger   *logger.Logger
}

func NewPurgeWorker(purger Purger, interval time.Duration, log *logger.Logger) *PurgeWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &PurgeWorker{
		purger:   purger,
		interval: interval,
		logger:   log.With("purge_worker"),
	}
}

// Start purges once immediately, then on every tick until ctx is done.
func (w *PurgeWorker) Start(ctx context.Context) {
	w.logger.Info("purge worker started", "interval", w.interval.String())

	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error(err, "purge failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("purge worker shutting down")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				// Log error but continue
				w.logger.Error(err, "purge failed")
			}
		}
	}
}

func (w *PurgeWorker) RunOnce(ctx context.Context) error {
	n, err := w.purger.PurgePast(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge past slots: %w", err)
	}
	if n > 0 {
		w.logger.Info("purged past slots", "removed", n)
	}
	return nil
}

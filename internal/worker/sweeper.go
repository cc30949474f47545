package worker

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired entries and reports how many went
type Sweeper interface {
	Sweep() int
}

// SweepWorker periodically evicts expired entries from in-process caches
// (profile cache, revoked sessions) when Redis is not configured.
type SweepWorker struct {
	targets  map[string]Sweeper
	logger   *slog.Logger
	interval time.Duration
}

// NewSweepWorker creates a sweep worker over the named targets
func NewSweepWorker(targets map[string]Sweeper, logger *slog.Logger, interval time.Duration) *SweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepWorker{targets: targets, logger: logger, interval: interval}
}

// Start runs the sweep loop until ctx is cancelled
func (w *SweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepOnce()
		}
	}
}

// SweepOnce sweeps every target and returns the total evicted
func (w *SweepWorker) SweepOnce() int {
	total := 0
	for name, target := range w.targets {
		if n := target.Sweep(); n > 0 {
			w.logger.Debug("swept expired entries", slog.String("target", name), slog.Int("count", n))
			total += n
		}
	}
	return total
}

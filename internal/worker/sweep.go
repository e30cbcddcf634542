package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/run-matchmaker/internal/config"
)

// Sweeper deletes pool snapshots older than a TTL
type Sweeper interface {
	Sweep(ctx context.Context, ttl time.Duration) (int, error)
}

// SweepWorker expires old snapshots from the matchmaking pool on a fixed interval
type SweepWorker struct {
	sweeper Sweeper
	config  *config.SweepConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(sweeper Sweeper, cfg *config.SweepConfig, logger *slog.Logger) *SweepWorker {
	return &SweepWorker{
		sweeper: sweeper,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background sweep process
func (w *SweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sweep worker started", "interval", w.config.Interval, "ttl", w.config.TTL)

	go w.run(ctx)
	return nil
}

// Stop stops the background sweep process
func (w *SweepWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sweep worker stopped")
	return nil
}

// run is the main worker loop
func (w *SweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// IsRunning returns whether the worker is currently running
func (w *SweepWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single sweep cycle. Failures are logged and retried on the
// next tick.
func (w *SweepWorker) RunOnce(ctx context.Context) int {
	startTime := time.Now()
	removed, err := w.sweeper.Sweep(ctx, w.config.TTL)
	if err != nil {
		w.logger.Error("snapshot sweep failed", "error", err)
		return removed
	}
	w.logger.Info("snapshot sweep completed",
		"removed", removed,
		"duration", time.Since(startTime),
	)
	return removed
}

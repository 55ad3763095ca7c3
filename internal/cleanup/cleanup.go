// Package cleanup provides background retention for the run history.
package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/halcyard/winch/internal/logger"
)

// Pruner is the store surface the janitor needs.
type Pruner interface {
	Prune(retention time.Duration) (int64, error)
}

// Config holds retention configuration.
type Config struct {
	Interval  time.Duration // how often to prune
	Retention time.Duration // how long to keep finished runs
}

// DefaultConfig returns sensible defaults: hourly pruning, 30 days kept.
func DefaultConfig() Config {
	return Config{
		Interval:  1 * time.Hour,
		Retention: 30 * 24 * time.Hour,
	}
}

// Janitor periodically deletes history rows past retention.
type Janitor struct {
	store     Pruner
	interval  time.Duration
	retention time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Janitor with the given configuration.
func New(store Pruner, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	return &Janitor{
		store:     store,
		interval:  cfg.Interval,
		retention: cfg.Retention,
	}
}

// Start begins the periodic prune loop.
func (j *Janitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.wg.Add(1)

	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		// Run immediately on start
		j.runOnce()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.runOnce()
			}
		}
	}()

	logger.Slog().Info("history retention started", "interval", j.interval, "retention", j.retention)
}

// Stop halts the prune loop.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
		j.wg.Wait()
		logger.Slog().Info("history retention stopped")
	}
}

func (j *Janitor) runOnce() {
	removed, err := j.store.Prune(j.retention)
	if err != nil {
		logger.Slog().Warn("pruning history", "error", err)
		return
	}
	if removed > 0 {
		logger.Slog().Info("pruned history", "removed", removed)
	}
}

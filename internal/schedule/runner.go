package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/halcyard/winch/internal/logger"
	"github.com/halcyard/winch/internal/metrics"
)

// ExecutionFunc is called by the runner to execute one due watch. The caller
// owns recording the run's output; the error only drives logging and the
// watch_runs metric.
type ExecutionFunc func(ctx context.Context, watch *Watch) error

// Runner ticks once a minute and executes due watches.
type Runner struct {
	store       *Store
	executeFunc ExecutionFunc
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	// Track running executions per watch for overlap handling
	running   map[string]int // watch ID -> count of running executions
	runningMu sync.Mutex
}

// NewRunner creates a new watch runner
func NewRunner(store *Store, executeFunc ExecutionFunc) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:       store,
		executeFunc: executeFunc,
		ctx:         ctx,
		cancel:      cancel,
		running:     make(map[string]int),
	}
}

// Start begins the scheduler loop
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.loop()
	logger.Slog().Info("watch runner started")
}

// Stop gracefully stops the runner and waits for in-flight executions
func (r *Runner) Stop() {
	logger.Slog().Info("stopping watch runner")
	r.cancel()
	r.wg.Wait()
	logger.Slog().Info("watch runner stopped")
}

// loop runs every minute to check for due watches
func (r *Runner) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	// Run immediately on start
	r.checkDueWatches()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.checkDueWatches()
		}
	}
}

// checkDueWatches finds and executes due watches
func (r *Runner) checkDueWatches() {
	now := time.Now()
	watches, err := r.store.ListDue(now)
	if err != nil {
		logger.Slog().Error("failed to list due watches", "error", err)
		return
	}

	for _, watch := range watches {
		r.executeWatch(watch)
	}
}

// executeWatch executes a single watch respecting overlap behavior
func (r *Runner) executeWatch(watch *Watch) {
	r.runningMu.Lock()
	runningCount := r.running[watch.ID]

	if watch.OverlapBehavior != OverlapParallel && runningCount > 0 {
		r.runningMu.Unlock()
		logger.Slog().Info("skipping watch, previous run still going",
			"watch_id", watch.ID, "name", watch.Name)
		metrics.RecordWatchRun("skipped")
		return
	}

	r.running[watch.ID]++
	r.runningMu.Unlock()

	// Execute in goroutine to not block the ticker
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.runningMu.Lock()
			r.running[watch.ID]--
			if r.running[watch.ID] == 0 {
				delete(r.running, watch.ID)
			}
			r.runningMu.Unlock()
		}()

		r.runWatch(watch)
	}()
}

// runWatch executes the watch and schedules its next run
func (r *Runner) runWatch(watch *Watch) {
	now := time.Now()
	log := logger.Slog().With("watch_id", watch.ID, "name", watch.Name)
	log.Info("executing watch", "target", watch.Target, "command", watch.Command)

	if err := r.executeFunc(r.ctx, watch); err != nil {
		log.Error("watch execution failed", "error", err)
		metrics.RecordWatchRun("error")
	} else {
		metrics.RecordWatchRun("ok")
	}

	nextRun, err := NextRun(watch.CronExpr, now)
	if err != nil {
		log.Error("failed to calculate next run", "error", err)
		return
	}
	if err := r.store.UpdateRunTimes(watch.ID, now, nextRun); err != nil {
		log.Error("failed to update run times", "error", err)
		return
	}
	log.Info("watch completed", "next_run", nextRun.Format(time.RFC3339))
}

// IsRunning returns the number of running executions for a watch
func (r *Runner) IsRunning(watchID string) int {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()
	return r.running[watchID]
}

// TriggerNow manually triggers a watch immediately, without touching its
// scheduled run times.
func (r *Runner) TriggerNow(watch *Watch) error {
	logger.Slog().Info("manually triggering watch", "watch_id", watch.ID, "name", watch.Name)
	return r.executeFunc(r.ctx, watch)
}

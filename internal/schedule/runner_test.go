package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunner_OverlapSkip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	watch := testWatch("slow")
	if err := store.Create(watch); err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	started := make(chan struct{}, 2)
	block := make(chan struct{})
	runner := NewRunner(store, func(ctx context.Context, w *Watch) error {
		runs.Add(1)
		started <- struct{}{}
		<-block
		return nil
	})

	runner.executeWatch(watch)
	<-started
	if got := runner.IsRunning(watch.ID); got != 1 {
		t.Fatalf("IsRunning() = %d, want 1", got)
	}

	// Second firing while the first still runs must be skipped.
	runner.executeWatch(watch)
	if got := runner.IsRunning(watch.ID); got != 1 {
		t.Errorf("IsRunning() after skip = %d, want 1", got)
	}

	close(block)
	runner.Stop()

	if got := runs.Load(); got != 1 {
		t.Errorf("executions = %d, want 1", got)
	}
	if got := runner.IsRunning(watch.ID); got != 0 {
		t.Errorf("IsRunning() after stop = %d, want 0", got)
	}
}

func TestRunner_OverlapParallel(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	watch := testWatch("fan-out")
	watch.OverlapBehavior = OverlapParallel
	if err := store.Create(watch); err != nil {
		t.Fatal(err)
	}

	var runs atomic.Int32
	started := make(chan struct{}, 2)
	block := make(chan struct{})
	runner := NewRunner(store, func(ctx context.Context, w *Watch) error {
		runs.Add(1)
		started <- struct{}{}
		<-block
		return nil
	})

	runner.executeWatch(watch)
	runner.executeWatch(watch)
	<-started
	<-started
	if got := runner.IsRunning(watch.ID); got != 2 {
		t.Errorf("IsRunning() = %d, want 2", got)
	}

	close(block)
	runner.Stop()

	if got := runs.Load(); got != 2 {
		t.Errorf("executions = %d, want 2", got)
	}
}

func TestRunner_TriggerNow(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	watch := testWatch("adhoc")
	if err := store.Create(watch); err != nil {
		t.Fatal(err)
	}
	before, err := store.Get(watch.ID)
	if err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("endpoint unreachable")
	runner := NewRunner(store, func(ctx context.Context, w *Watch) error {
		if w.Name != "adhoc" {
			t.Errorf("executed watch %q, want adhoc", w.Name)
		}
		return wantErr
	})
	defer runner.Stop()

	if err := runner.TriggerNow(watch); !errors.Is(err, wantErr) {
		t.Errorf("TriggerNow() error = %v, want %v", err, wantErr)
	}

	// Manual triggers must not move the schedule.
	after, err := store.Get(watch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.LastRunAt != nil {
		t.Error("TriggerNow() should not set LastRunAt")
	}
	if before.NextRunAt == nil || after.NextRunAt == nil || !after.NextRunAt.Equal(*before.NextRunAt) {
		t.Errorf("NextRunAt changed from %v to %v", before.NextRunAt, after.NextRunAt)
	}
}

package cleanup

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakePruner struct {
	calls     atomic.Int32
	retention atomic.Int64
	removed   int64
	err       error
}

func (f *fakePruner) Prune(retention time.Duration) (int64, error) {
	f.calls.Add(1)
	f.retention.Store(int64(retention))
	if f.err != nil {
		return 0, f.err
	}
	return f.removed, nil
}

func TestJanitor_RunsImmediatelyAndStops(t *testing.T) {
	pruner := &fakePruner{removed: 3}
	j := New(pruner, Config{Interval: 5 * time.Millisecond, Retention: time.Hour})

	j.Start()

	deadline := time.After(2 * time.Second)
	for pruner.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated prunes, got %d", pruner.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}

	j.Stop()
	after := pruner.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if got := pruner.calls.Load(); got != after {
		t.Errorf("prunes continued after Stop: %d -> %d", after, got)
	}

	if got := time.Duration(pruner.retention.Load()); got != time.Hour {
		t.Errorf("retention = %v, want 1h", got)
	}
}

func TestJanitor_PruneErrorKeepsLooping(t *testing.T) {
	pruner := &fakePruner{err: errors.New("database is locked")}
	j := New(pruner, Config{Interval: 5 * time.Millisecond, Retention: time.Hour})

	j.Start()
	defer j.Stop()

	deadline := time.After(2 * time.Second)
	for pruner.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected the loop to survive errors, got %d calls", pruner.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	j := New(&fakePruner{}, Config{})
	if j.interval != DefaultConfig().Interval {
		t.Errorf("interval = %v, want default", j.interval)
	}
	if j.retention != DefaultConfig().Retention {
		t.Errorf("retention = %v, want default", j.retention)
	}
}

func TestJanitor_StopWithoutStart(t *testing.T) {
	j := New(&fakePruner{}, Config{})
	j.Stop() // must not panic
}

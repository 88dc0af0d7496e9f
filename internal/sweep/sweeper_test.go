package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCleaner struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCleaner) CleanupOld() (int, error) {
	f.calls.Add(1)
	return 1, f.err
}

type fakePruner struct {
	calls atomic.Int32
	err   error
}

func (f *fakePruner) PruneExpired() (int, error) {
	f.calls.Add(1)
	return 1, f.err
}

func TestRunOnceSweepsBothCollections(t *testing.T) {
	jobs := &fakeCleaner{}
	pend := &fakePruner{}

	New(jobs, pend, 0).RunOnce()

	if jobs.calls.Load() != 1 || pend.calls.Load() != 1 {
		t.Errorf("calls = jobs:%d pending:%d, want 1 each", jobs.calls.Load(), pend.calls.Load())
	}
}

func TestRunOnceContinuesPastErrors(t *testing.T) {
	jobs := &fakeCleaner{}
	pend := &fakePruner{err: errors.New("disk full")}

	// A failing prune must not stop the job cleanup.
	New(jobs, pend, 0).RunOnce()

	if jobs.calls.Load() != 1 {
		t.Errorf("job cleanup skipped after prune error")
	}
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	jobs := &fakeCleaner{}
	pend := &fakePruner{}
	s := New(jobs, pend, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for pend.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("sweeper never ticked twice")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

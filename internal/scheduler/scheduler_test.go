package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/domain"
)

func TestLease_AcquireOrSkip(t *testing.T) {
	l := NewLease()
	if !l.TryAcquire(1) {
		t.Fatal("first acquire must succeed")
	}
	if l.TryAcquire(1) {
		t.Fatal("second acquire of a held lease must fail")
	}
	if !l.TryAcquire(2) {
		t.Fatal("other targets are independent")
	}
	l.Release(1)
	if !l.TryAcquire(1) {
		t.Fatal("released lease must be acquirable again")
	}
}

func TestScheduler_ScheduleReplacesExistingJob(t *testing.T) {
	s := New(func(ctx context.Context, id domain.TargetID) error { return nil }, zap.NewNop())
	defer s.Stop()
	ctx := context.Background()
	tg := &domain.Target{ID: 1, IntervalSec: 60}

	s.Schedule(ctx, tg)
	s.Schedule(ctx, tg) // resume after pause, or interval edit
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	if n != 1 {
		t.Fatalf("want exactly one job after reschedule, got %d", n)
	}
}

func TestScheduler_UnscheduleUnknownIsNoop(t *testing.T) {
	s := New(func(ctx context.Context, id domain.TargetID) error { return nil }, zap.NewNop())
	defer s.Stop()

	s.Unschedule(42)
	s.Schedule(context.Background(), &domain.Target{ID: 7, IntervalSec: 60})
	s.Unschedule(7)
	s.Unschedule(7)

	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("want no jobs, got %d", n)
	}
}

func TestScheduler_InFlightCheckOutlivesCancel(t *testing.T) {
	ctxCh := make(chan context.Context, 1)
	release := make(chan struct{})
	done := make(chan struct{})
	s := New(func(ctx context.Context, id domain.TargetID) error {
		ctxCh <- ctx
		<-release
		defer close(done)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}, zap.NewNop())

	jobCtx, cancel := context.WithCancel(context.Background())
	go s.tick(jobCtx, 1)

	var runCtx context.Context
	select {
	case runCtx = <-ctxCh:
	case <-time.After(time.Second):
		t.Fatal("check never started")
	}

	// Pausing the target cancels the job; the running check must not see it.
	cancel()
	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("check never finished")
	}
	if runCtx.Err() != nil {
		t.Fatalf("in-flight check was aborted by job cancel: %v", runCtx.Err())
	}
}

func TestScheduler_TickSkipsWhileCheckRuns(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	s := New(func(ctx context.Context, id domain.TargetID) error {
		mu.Lock()
		calls++
		mu.Unlock()
		<-block
		return nil
	}, zap.NewNop())

	go s.tick(context.Background(), 1)
	// wait for the first tick to hold the lease
	deadline := time.After(time.Second)
	for {
		mu.Lock()
		started := calls == 1
		mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first tick never started")
		case <-time.After(time.Millisecond):
		}
	}

	s.tick(context.Background(), 1) // overlapping tick must skip
	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Fatalf("overlapping tick ran the check, calls=%d", got)
	}
	close(block)
}

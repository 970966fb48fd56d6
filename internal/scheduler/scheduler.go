// Package scheduler drives periodic checks and maintenance jobs. Each
// target gets its own loop so a slow probe never delays the rest of the
// fleet.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/domain"
)

// startupDelay staggers the first check so a restart does not slam every
// target at once.
const startupDelay = 2 * time.Second

// RunFunc executes one check for a target.
type RunFunc func(ctx context.Context, id domain.TargetID) error

type Scheduler struct {
	Run RunFunc
	Log *zap.Logger

	lease *Lease
	mu    sync.Mutex
	jobs  map[domain.TargetID]context.CancelFunc
	wg    sync.WaitGroup
}

func New(run RunFunc, log *zap.Logger) *Scheduler {
	return &Scheduler{
		Run:   run,
		Log:   log,
		lease: NewLease(),
		jobs:  make(map[domain.TargetID]context.CancelFunc),
	}
}

// Schedule starts (or restarts) the check loop for a target. Scheduling a
// target that already runs replaces its job, so interval edits and
// pause/resume cycles never leave two loops behind.
func (s *Scheduler) Schedule(ctx context.Context, t *domain.Target) {
	s.mu.Lock()
	if cancel, ok := s.jobs[t.ID]; ok {
		cancel()
	}
	jobCtx, cancel := context.WithCancel(ctx)
	s.jobs[t.ID] = cancel
	s.mu.Unlock()

	interval := time.Duration(t.IntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	s.wg.Add(1)
	go s.loop(jobCtx, t.ID, interval)
	s.Log.Info("scheduled target",
		zap.Int64("target_id", int64(t.ID)),
		zap.Duration("interval", interval))
}

// Unschedule stops the target's loop. Unknown ids are a no-op.
func (s *Scheduler) Unschedule(id domain.TargetID) {
	s.mu.Lock()
	cancel, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if ok {
		cancel()
		s.Log.Info("unscheduled target", zap.Int64("target_id", int64(id)))
	}
}

// Stop cancels every job and waits for in-flight checks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, cancel := range s.jobs {
		cancel()
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, id domain.TargetID, interval time.Duration) {
	defer s.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(startupDelay):
	}
	s.tick(ctx, id)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, id)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, id domain.TargetID) {
	if !s.lease.TryAcquire(id) {
		s.Log.Debug("previous check still running, skipping tick",
			zap.Int64("target_id", int64(id)))
		return
	}
	defer s.lease.Release(id)

	// The job context only ends the loop. A check that is already in
	// flight when the target is paused or rescheduled runs to completion
	// and records its result; aborting it mid-request would write a bogus
	// connection failure into the target's history.
	if err := s.Run(context.WithoutCancel(ctx), id); err != nil {
		s.Log.Error("check failed", zap.Error(err), zap.Int64("target_id", int64(id)))
	}
}

// Every runs fn immediately and then on a fixed interval until ctx ends.
func Every(ctx context.Context, interval time.Duration, name string, log *zap.Logger, fn func(context.Context)) {
	go func() {
		fn(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("job stopped", zap.String("job", name))
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// DailyAt runs fn once a day at the given local hour.
func DailyAt(ctx context.Context, hour int, name string, log *zap.Logger, fn func(context.Context)) {
	go func() {
		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
			if !next.After(now) {
				next = next.Add(24 * time.Hour)
			}
			select {
			case <-ctx.Done():
				log.Info("job stopped", zap.String("job", name))
				return
			case <-time.After(time.Until(next)):
				fn(ctx)
			}
		}
	}()
}

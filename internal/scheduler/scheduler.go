// Package scheduler drives the ingestion rounds: one jittered periodic loop
// per source class, a manual trigger, and at most one in-flight run per
// class.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/greyledger/sitrep/internal/domain"
	"github.com/greyledger/sitrep/internal/observability"
)

// Runner executes one ingestion round for a source class.
type Runner interface {
	RunClass(ctx context.Context, class domain.SourceClass) error
}

// Config holds the scheduling knobs.
type Config struct {
	// Intervals is the nominal period per class.
	Intervals map[domain.SourceClass]time.Duration
	// JitterFrac spreads each period by ±frac so loops do not align.
	JitterFrac float64
	// InitialRun runs every class once at startup before the periodic
	// schedule begins.
	InitialRun bool
}

// Scheduler owns the per-class loops. Scheduled and manual runs share the
// same in-flight guard: a class never runs twice concurrently.
type Scheduler struct {
	runner  Runner
	cfg     Config
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	inFlight  map[domain.SourceClass]bool
	lifecycle context.Context

	wg sync.WaitGroup
}

// New creates a Scheduler.
func New(runner Runner, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		runner:   runner,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		inFlight: make(map[domain.SourceClass]bool),
	}
}

// Run starts one loop per configured class and blocks until the context is
// cancelled and all loops have drained.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.lifecycle = ctx
	s.mu.Unlock()

	s.metrics.SchedulerUp.Set(1)
	defer s.metrics.SchedulerUp.Set(0)

	for class, interval := range s.cfg.Intervals {
		s.wg.Add(1)
		go s.loop(ctx, class, interval)
	}
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// TriggerNow starts a run for the class immediately, in the background. The
// round runs on the scheduler's own lifecycle context, not the caller's, so
// it outlives the request that triggered it and drains with Run on shutdown.
// Returns domain.ErrRunInProgress when a run for the class is already in
// flight; nothing is queued in that case.
func (s *Scheduler) TriggerNow(class domain.SourceClass) error {
	ctx := s.runContext()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !s.tryAcquire(class) {
		s.metrics.RunsRejected.WithLabelValues(string(class)).Inc()
		return domain.ErrRunInProgress
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(class)
		s.runOnce(ctx, class, "manual")
	}()
	return nil
}

// runContext is the context manual rounds run on. Before Run has started
// there is no lifecycle to tie to yet, so it falls back to background.
func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle == nil {
		return context.Background()
	}
	return s.lifecycle
}

func (s *Scheduler) loop(ctx context.Context, class domain.SourceClass, interval time.Duration) {
	defer s.wg.Done()

	logger := s.logger.With("class", class, "interval", interval)
	logger.Info("schedule loop started")

	if s.cfg.InitialRun {
		s.scheduledRun(ctx, class)
	}

	for {
		if !s.sleepWithContext(ctx, jittered(interval, s.cfg.JitterFrac)) {
			logger.Info("schedule loop stopping", "reason", ctx.Err())
			return
		}
		s.scheduledRun(ctx, class)
	}
}

// scheduledRun skips the tick when a manual run for the class is still in
// flight, rather than stacking up behind it.
func (s *Scheduler) scheduledRun(ctx context.Context, class domain.SourceClass) {
	if !s.tryAcquire(class) {
		s.logger.Warn("skipping scheduled run, class busy", "class", class)
		return
	}
	defer s.release(class)
	s.runOnce(ctx, class, "scheduled")
}

func (s *Scheduler) runOnce(ctx context.Context, class domain.SourceClass, kind string) {
	if ctx.Err() != nil {
		return
	}

	runID := uuid.NewString()
	logger := s.logger.With("class", class, "run_id", runID, "kind", kind)
	logger.Info("round started")

	if err := s.runner.RunClass(ctx, class); err != nil {
		logger.Error("round failed", "error", err)
		return
	}
	logger.Info("round finished")
}

func (s *Scheduler) tryAcquire(class domain.SourceClass) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[class] {
		return false
	}
	s.inFlight[class] = true
	return true
}

func (s *Scheduler) release(class domain.SourceClass) {
	s.mu.Lock()
	delete(s.inFlight, class)
	s.mu.Unlock()
}

func (s *Scheduler) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

// jittered spreads d by a uniform ±frac of itself.
func jittered(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	offset := (rand.Float64()*2 - 1) * frac * float64(d)
	return d + time.Duration(offset)
}

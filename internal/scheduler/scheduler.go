// Package scheduler fires task execution cycles on their cron schedules.
// Retry policy lives here, not in the executor: a failed cycle is re-run
// only when its error kind is eligible (transport failures).
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/capybara-rs/scheduler/internal/domain"
	"github.com/capybara-rs/scheduler/internal/executor"
	"github.com/capybara-rs/scheduler/pkg/retry"
	"github.com/capybara-rs/scheduler/pkg/telemetry"
)

// ReportSink receives every terminal cycle report. Implementations must be
// safe for concurrent use.
type ReportSink interface {
	Publish(ctx context.Context, report *domain.Report) error
}

// Scheduler owns the cron runner and the per-task overlap guards.
type Scheduler struct {
	exec       *executor.Executor
	cron       *cron.Cron
	logger     *slog.Logger
	sink       ReportSink
	maxRetries int
	baseDelay  time.Duration

	mu       sync.Mutex
	inFlight map[string]*atomic.Bool

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }
func WithReportSink(sink ReportSink) Option { return func(s *Scheduler) { s.sink = sink } }
func WithRetries(n int) Option { return func(s *Scheduler) { s.maxRetries = n } }
func WithBaseDelay(d time.Duration) Option { return func(s *Scheduler) { s.baseDelay = d } }

// New constructs a Scheduler around an executor.
func New(exec *executor.Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		exec:       exec,
		cron:       cron.New(),
		logger:     slog.Default(),
		maxRetries: 0,
		baseDelay:  time.Second,
		inFlight:   make(map[string]*atomic.Bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a task. Tasks without a schedule are registered for manual
// triggering only.
func (s *Scheduler) Add(ctx context.Context, task *domain.Task) error {
	s.guardFor(task.Name)
	if task.Schedule == "" {
		return nil
	}
	_, err := s.cron.AddFunc(task.Schedule, func() {
		s.fire(ctx, task)
	})
	return err
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// in-flight cycles to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.wg.Wait()
}

// Trigger runs one cycle of the task outside its schedule, with the same
// overlap guard. Returns false without running when a cycle is already in
// flight.
func (s *Scheduler) Trigger(ctx context.Context, task *domain.Task) (*domain.Report, bool) {
	guard := s.guardFor(task.Name)
	if !guard.CompareAndSwap(false, true) {
		return nil, false
	}
	defer guard.Store(false)
	return s.runCycle(ctx, task), true
}

// InFlight reports whether a cycle for the task is currently running.
func (s *Scheduler) InFlight(taskName string) bool {
	return s.guardFor(taskName).Load()
}

func (s *Scheduler) guardFor(taskName string) *atomic.Bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.inFlight[taskName]
	if !ok {
		g = &atomic.Bool{}
		s.inFlight[taskName] = g
	}
	return g
}

// fire is the cron entry point. At most one cycle per task may be in flight;
// a fire that lands while the previous cycle still runs is skipped, not
// queued.
func (s *Scheduler) fire(ctx context.Context, task *domain.Task) {
	guard := s.guardFor(task.Name)
	if !guard.CompareAndSwap(false, true) {
		telemetry.OverlapSkipsTotal.WithLabelValues(task.Name).Inc()
		s.logger.Warn("previous cycle still in flight, skipping fire",
			slog.String("task", task.Name),
		)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer guard.Store(false)
		s.runCycle(ctx, task)
	}()
}

func (s *Scheduler) runCycle(ctx context.Context, task *domain.Task) *domain.Report {
	var report *domain.Report
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: s.maxRetries + 1,
		BaseDelay:   s.baseDelay,
		Retryable:   retryable,
		OnRetry: func(attempt int, err error) {
			telemetry.RetriesTotal.WithLabelValues(task.Name).Inc()
			s.logger.Warn("cycle failed, retrying",
				slog.String("task", task.Name),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		},
	}, func() error {
		report = s.exec.Execute(ctx, task)
		return report.Err
	})

	if err != nil && domain.Kind(err) == domain.KindPersistence {
		// The HTTP call may have gone through without the watermark moving;
		// this must alert louder than an ordinary failure.
		s.logger.Error("watermark write failed after dispatch, watermark is stale",
			slog.String("task", task.Name),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, report)
	return report
}

func (s *Scheduler) publish(ctx context.Context, report *domain.Report) {
	if s.sink == nil || report == nil {
		return
	}
	if err := s.sink.Publish(ctx, report); err != nil {
		telemetry.EventsPublishedTotal.WithLabelValues("error").Inc()
		s.logger.Error("publish cycle report",
			slog.String("task", report.TaskName),
			slog.String("error", err.Error()),
		)
		return
	}
	telemetry.EventsPublishedTotal.WithLabelValues("ok").Inc()
}

// retryable marks transport failures as eligible for another attempt.
// Resolution and validation failures are deterministic within a cycle's
// inputs, and a persistence failure must not re-dispatch the HTTP call.
func retryable(err error) bool {
	var tr *domain.TransportError
	return errors.As(err, &tr)
}

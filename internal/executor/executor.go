// Package executor drives one execution cycle of a task through its state
// machine: build the resolution context, resolve the request, dispatch it,
// validate the response, persist the watermark.
package executor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/capybara-rs/scheduler/internal/domain"
	"github.com/capybara-rs/scheduler/internal/resolve"
	"github.com/capybara-rs/scheduler/internal/store"
	"github.com/capybara-rs/scheduler/pkg/telemetry"
)

// maxDiagnosticBody caps how much of a response body a report keeps. The
// rest is still drained so the connection can be reused.
const maxDiagnosticBody = 64 * 1024

const defaultTimeout = 30 * time.Second

// EnvFunc supplies the environment snapshot for one cycle.
type EnvFunc func() map[string]string

// ProcessEnv snapshots the process environment. This is the default: every
// cycle sees current values, so rotated credentials take effect without a
// restart.
func ProcessEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// FrozenEnv captures the environment once and serves the same snapshot to
// every cycle.
func FrozenEnv() EnvFunc {
	snapshot := ProcessEnv()
	return func() map[string]string { return snapshot }
}

// Executor runs execution cycles. It holds no per-task state; everything a
// cycle needs lives in the task descriptor, the store, and the per-cycle
// resolution context. Safe for concurrent use across distinct tasks.
type Executor struct {
	store   store.Store
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
	env     EnvFunc
}

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }
func WithHTTPClient(c *http.Client) Option { return func(e *Executor) { e.client = c } }
func WithDefaultTimeout(d time.Duration) Option { return func(e *Executor) { e.timeout = d } }
func WithEnv(f EnvFunc) Option { return func(e *Executor) { e.env = f } }

// New constructs an Executor over the given watermark store.
func New(st store.Store, opts ...Option) *Executor {
	e := &Executor{
		store:   st,
		client:  &http.Client{},
		logger:  slog.Default(),
		timeout: defaultTimeout,
		env:     ProcessEnv,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one cycle and always returns a terminal report. It never
// retries; retry policy belongs to the caller.
func (e *Executor) Execute(ctx context.Context, task *domain.Task) *domain.Report {
	report := &domain.Report{
		CycleID:   uuid.New().String(),
		TaskName:  task.Name,
		Reached:   domain.StateIdle,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := otel.Tracer("executor").Start(ctx, "executor.cycle")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.name", task.Name),
		attribute.String("cycle.id", report.CycleID),
	)

	log := e.logger.With(
		slog.String("task", task.Name),
		slog.String("cycle_id", report.CycleID),
	)

	telemetry.CyclesInFlight.WithLabelValues(task.Name).Inc()
	defer func() {
		telemetry.CyclesInFlight.WithLabelValues(task.Name).Dec()
		report.Duration = time.Since(report.StartedAt)
		telemetry.CycleDurationSeconds.WithLabelValues(task.Name).Observe(report.Duration.Seconds())
		if report.Failed() {
			telemetry.CyclesTotal.WithLabelValues(task.Name, "failed").Inc()
			telemetry.FailuresTotal.WithLabelValues(task.Name, report.ErrorKind()).Inc()
			span.RecordError(report.Err)
			span.SetStatus(codes.Error, report.ErrorKind())
			log.Error("cycle failed",
				slog.String("state_reached", string(report.Reached)),
				slog.String("kind", report.ErrorKind()),
				slog.String("error", report.Err.Error()),
			)
		} else {
			telemetry.CyclesTotal.WithLabelValues(task.Name, "succeeded").Inc()
			telemetry.WatermarkSeconds.WithLabelValues(task.Name).Set(float64(report.StartedAt.Unix()))
			log.Info("cycle succeeded",
				slog.Int("status", report.StatusCode),
				slog.Int64("duration_ms", report.Duration.Milliseconds()),
			)
		}
	}()

	fail := func(err error) *domain.Report {
		report.State = domain.StateFailed
		report.Err = err
		return report
	}

	// Idle → ContextBuilt: fetch the execution record and snapshot time and
	// environment. Only store unavailability can fail this step.
	last, ok, err := e.store.Get(ctx, task.Name)
	if err != nil {
		return fail(&domain.PersistenceError{Op: "get", Err: err})
	}
	rctx := &resolve.Context{
		Now:         report.StartedAt,
		Environment: e.env(),
	}
	if ok {
		rctx.LastExecuteTime = &last
	}
	report.Reached = domain.StateContextBuilt
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// ContextBuilt → Resolved: URL, every header, and the body. Any
	// resolution error aborts before a request exists.
	targetURL, err := resolve.ResolveTemplate(task.URL, rctx)
	if err != nil {
		return fail(err)
	}
	headerValues := make([]string, len(task.Headers))
	for i, h := range task.Headers {
		v, err := resolve.ResolveScalar(h.Value, rctx)
		if err != nil {
			return fail(err)
		}
		headerValues[i] = v
	}
	var payload []byte
	if task.Body != nil {
		concrete, err := resolve.Resolve(task.Body, rctx)
		if err != nil {
			return fail(err)
		}
		payload, err = resolve.Marshal(concrete)
		if err != nil {
			return fail(err)
		}
	}
	report.Reached = domain.StateResolved
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Resolved → Dispatched. The timeout is mandatory: the task's own, or
	// the runner default.
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, string(task.Method), targetURL, bodyReader)
	if err != nil {
		return fail(&domain.TransportError{Err: err})
	}
	for i, h := range task.Headers {
		req.Header.Set(h.Name, headerValues[i])
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fail(&domain.TransportError{Err: err})
	}
	report.Reached = domain.StateDispatched
	report.StatusCode = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	// Dispatched → Validated. The body is read and drained either way so the
	// connection is not leaked, and kept (truncated) for diagnostics.
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fail(&domain.TransportError{Err: readErr})
	}
	report.ResponseBody = respBody

	if !task.AcceptsStatus(resp.StatusCode) {
		return fail(&domain.UnexpectedStatusError{
			StatusCode: resp.StatusCode,
			Accepted:   task.SuccessStatusCodes,
			Body:       respBody,
		})
	}
	report.Reached = domain.StateValidated

	// A cycle cancelled before the watermark write gets no partial credit.
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Validated → Succeeded: advance the watermark to this cycle's timestamp.
	// The write must land before success is reported; if it fails, the cycle
	// fails even though the HTTP call went through, so the caller knows the
	// watermark did not move.
	if err := e.store.Put(ctx, task.Name, rctx.Now); err != nil {
		return fail(&domain.PersistenceError{Op: "put", Err: err})
	}
	report.State = domain.StateSucceeded
	return report
}

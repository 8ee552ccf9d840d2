package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capybara-rs/scheduler/internal/domain"
	"github.com/capybara-rs/scheduler/internal/executor"
	"github.com/capybara-rs/scheduler/internal/scheduler"
	"github.com/capybara-rs/scheduler/internal/store"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTask(t *testing.T, url string) *domain.Task {
	t.Helper()
	tmpl, err := domain.ParseTemplate(url)
	require.NoError(t, err)
	return &domain.Task{
		Name:               "report_task",
		Method:             domain.MethodGet,
		URL:                tmpl,
		SuccessStatusCodes: []int{200},
	}
}

func newScheduler(st store.Store, opts ...scheduler.Option) *scheduler.Scheduler {
	exec := executor.New(st, executor.WithLogger(discardLogger))
	opts = append([]scheduler.Option{scheduler.WithLogger(discardLogger)}, opts...)
	return scheduler.New(exec, opts...)
}

type captureSink struct {
	mu      sync.Mutex
	reports []*domain.Report
}

func (c *captureSink) Publish(_ context.Context, r *domain.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
	return nil
}

func (c *captureSink) all() []*domain.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*domain.Report(nil), c.reports...)
}

func TestTrigger_RunsOneCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := store.NewMemory()
	sink := &captureSink{}
	s := newScheduler(st, scheduler.WithReportSink(sink))

	report, ran := s.Trigger(context.Background(), newTask(t, srv.URL))

	require.True(t, ran)
	require.NotNil(t, report)
	assert.False(t, report.Failed())

	_, ok, err := st.Get(context.Background(), "report_task")
	require.NoError(t, err)
	assert.True(t, ok)

	reports := sink.all()
	require.Len(t, reports, 1)
	assert.Equal(t, domain.StateSucceeded, reports[0].State)
}

func TestTrigger_RefusedWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newScheduler(store.NewMemory())
	task := newTask(t, srv.URL)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ran := s.Trigger(context.Background(), task)
		assert.True(t, ran)
	}()

	<-started
	assert.True(t, s.InFlight(task.Name))

	report, ran := s.Trigger(context.Background(), task)
	assert.False(t, ran, "an overlapping trigger must be refused, not queued")
	assert.Nil(t, report)

	close(release)
	<-done
	assert.False(t, s.InFlight(task.Name))
}

func TestRunCycle_RetriesTransportFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			// Drop the connection so the client sees a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newScheduler(store.NewMemory(),
		scheduler.WithRetries(2),
		scheduler.WithBaseDelay(time.Millisecond),
	)

	report, ran := s.Trigger(context.Background(), newTask(t, srv.URL))
	require.True(t, ran)
	require.NotNil(t, report)
	assert.False(t, report.Failed(), "second attempt should have succeeded: %v", report.Err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRunCycle_DoesNotRetryUnexpectedStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newScheduler(store.NewMemory(),
		scheduler.WithRetries(3),
		scheduler.WithBaseDelay(time.Millisecond),
	)

	report, ran := s.Trigger(context.Background(), newTask(t, srv.URL))
	require.True(t, ran)
	require.True(t, report.Failed())
	assert.Equal(t, domain.KindUnexpectedStatus, report.ErrorKind())
	assert.Equal(t, int32(1), hits.Load(), "validation failures are not retried")
}

func TestAdd_RejectsBadSchedule(t *testing.T) {
	s := newScheduler(store.NewMemory())
	task := newTask(t, "https://example.com")
	task.Schedule = "not a cron line"

	err := s.Add(context.Background(), task)
	require.Error(t, err)
}

func TestAdd_ScheduleLessTaskIsManualOnly(t *testing.T) {
	s := newScheduler(store.NewMemory())
	task := newTask(t, "https://example.com")

	require.NoError(t, s.Add(context.Background(), task))
	assert.False(t, s.InFlight(task.Name))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := newScheduler(store.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

// Package api exposes a small HTTP surface over the loaded tasks: list
// descriptors with their watermarks, inspect one, and trigger a one-off run.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/capybara-rs/scheduler/internal/domain"
	"github.com/capybara-rs/scheduler/internal/scheduler"
	"github.com/capybara-rs/scheduler/internal/store"
)

// Server serves the task status API.
type Server struct {
	tasks  []*domain.Task
	byName map[string]*domain.Task
	store  store.Store
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

// NewServer builds a Server over the loaded task list.
func NewServer(tasks []*domain.Task, st store.Store, sched *scheduler.Scheduler, logger *slog.Logger) *Server {
	byName := make(map[string]*domain.Task, len(tasks))
	for _, t := range tasks {
		byName[t.Name] = t
	}
	return &Server{tasks: tasks, byName: byName, store: st, sched: sched, logger: logger}
}

// Router assembles the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tasks", s.listTasks)
		r.Get("/tasks/{name}", s.getTask)
		r.Post("/tasks/{name}/run", s.runTask)
	})
	return r
}

// Start serves the API in a background goroutine with graceful shutdown on
// ctx cancellation.
func (s *Server) Start(ctx context.Context, addr string) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		s.logger.Info("api server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
}

// TaskStatus is the JSON shape of one task in list and get responses.
type TaskStatus struct {
	Name               string     `json:"name"`
	Method             string     `json:"method"`
	URL                string     `json:"url"`
	Schedule           string     `json:"schedule,omitempty"`
	SuccessStatusCodes []int      `json:"success_status_codes"`
	LastExecuteTime    *time.Time `json:"last_execute_time,omitempty"`
	InFlight           bool       `json:"in_flight"`
}

// RunResponse is the JSON shape of a triggered cycle's outcome.
type RunResponse struct {
	CycleID      string `json:"cycle_id"`
	TaskName     string `json:"task_name"`
	State        string `json:"state"`
	StateReached string `json:"state_reached"`
	ErrorKind    string `json:"error_kind,omitempty"`
	Error        string `json:"error,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

func (s *Server) status(ctx context.Context, task *domain.Task) TaskStatus {
	st := TaskStatus{
		Name:               task.Name,
		Method:             string(task.Method),
		URL:                task.URL.String(), // env refs render unexpanded
		Schedule:           task.Schedule,
		SuccessStatusCodes: task.SuccessStatusCodes,
		InFlight:           s.sched.InFlight(task.Name),
	}
	if last, ok, err := s.store.Get(ctx, task.Name); err == nil && ok {
		st.LastExecuteTime = &last
	}
	return st
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, s.status(r.Context(), t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.byName[chi.URLParam(r, "name")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	writeJSON(w, http.StatusOK, s.status(r.Context(), task))
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.byName[chi.URLParam(r, "name")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}

	report, ran := s.sched.Trigger(r.Context(), task)
	if !ran {
		writeError(w, http.StatusConflict, "a cycle for this task is already in flight")
		return
	}

	resp := RunResponse{
		CycleID:      report.CycleID,
		TaskName:     report.TaskName,
		State:        string(report.State),
		StateReached: string(report.Reached),
		StatusCode:   report.StatusCode,
		DurationMs:   report.Duration.Milliseconds(),
	}
	if report.Err != nil {
		resp.ErrorKind = report.ErrorKind()
		resp.Error = report.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

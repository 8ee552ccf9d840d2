package domain

import (
	"fmt"
	"time"
)

// Method is the HTTP verb of a task. Only the uppercase spellings below are
// accepted; lowercase is a definition error, matching the document format.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodPatch  Method = "PATCH"
)

// ParseMethod validates a configuration method spelling.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown method %q, expected one of [GET, POST, PUT, DELETE, PATCH]", s)
}

// Header is one declared request header. Header values are restricted to
// scalar expression nodes (string, integer, float, source); declaration
// order is preserved.
type Header struct {
	Name  string
	Value Value
}

// Task is a declarative HTTP task: what to call, with which headers and
// body, and which response codes count as success. The expression trees are
// immutable once loaded; the executor only reads them.
type Task struct {
	Name               string
	Method             Method
	URL                Template
	Headers            []Header
	SuccessStatusCodes []int
	Body               Value // nil when the task sends no body

	// Schedule is a cron expression. Empty means the task never fires on its
	// own and only runs through the run command or the trigger API.
	Schedule string
	// Timeout bounds one dispatch. Zero falls back to the runner default.
	Timeout time.Duration
}

// AcceptsStatus reports whether code is in the task's success set.
func (t *Task) AcceptsStatus(code int) bool {
	for _, c := range t.SuccessStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// State is a phase of one execution cycle. A cycle walks the states in
// order and ends in StateSucceeded or StateFailed.
type State string

const (
	StateIdle         State = "IDLE"
	StateContextBuilt State = "CONTEXT_BUILT"
	StateResolved     State = "RESOLVED"
	StateDispatched   State = "DISPATCHED"
	StateValidated    State = "VALIDATED"
	StateSucceeded    State = "SUCCEEDED"
	StateFailed       State = "FAILED"
)

// Terminal reports whether the cycle is finished.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Report is the outcome of one execution cycle, handed back to whoever drove
// it. Reached is the deepest non-terminal state the cycle got to, so a
// failure can be placed precisely (resolution vs dispatch vs persistence).
type Report struct {
	CycleID  string
	TaskName string
	State    State
	Reached  State
	Err      error

	// StatusCode and ResponseBody are set once a response was received,
	// including on UnexpectedStatus failures (body truncated for diagnostics).
	StatusCode   int
	ResponseBody []byte

	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether the cycle ended in StateFailed.
func (r *Report) Failed() bool { return r.State == StateFailed }

// ErrorKind returns the classification label for the report's error, or ""
// for a successful cycle.
func (r *Report) ErrorKind() string {
	if r.Err == nil {
		return ""
	}
	return Kind(r.Err)
}

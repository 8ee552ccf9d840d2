package domain

import (
	"context"
	"errors"
	"fmt"
)

// DefinitionError is a malformed task definition found at load time. It is
// fatal for that task only: the task is reported and excluded from
// scheduling, the rest of the document still loads.
type DefinitionError struct {
	TaskName string // empty when the task name itself could not be read
	Path     string // location inside the document, e.g. "body.json.field3"
	Detail   string
}

func (e *DefinitionError) Error() string {
	name := e.TaskName
	if name == "" {
		name = "<unnamed>"
	}
	if e.Path == "" {
		return fmt.Sprintf("task %s: %s", name, e.Detail)
	}
	return fmt.Sprintf("task %s: %s: %s", name, e.Path, e.Detail)
}

// InvalidEnvSyntaxError is an env!( reference with no closing parenthesis.
type InvalidEnvSyntaxError struct {
	Text string
}

func (e *InvalidEnvSyntaxError) Error() string {
	return fmt.Sprintf("invalid env!() syntax in %q", e.Text)
}

// MissingSourceError is a last_execute_time reference resolved on a task
// that has never succeeded. It is never defaulted to an empty or epoch
// timestamp; the cycle fails instead.
type MissingSourceError struct {
	Source Source
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("source %s has no value: task has no prior successful execution", e.Source)
}

// UnresolvedEnvError is an environment variable lookup that found nothing.
type UnresolvedEnvError struct {
	Name string
}

func (e *UnresolvedEnvError) Error() string {
	return fmt.Sprintf("env %s not found", e.Name)
}

// TransportError is a network-level dispatch failure (connection refused,
// timeout, ...). Eligible for retry by the scheduler.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// UnexpectedStatusError is a response whose status code is outside the
// task's success set. The (truncated) response body is kept for diagnostics.
type UnexpectedStatusError struct {
	StatusCode int
	Accepted   []int
	Body       []byte
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d, accepted %v", e.StatusCode, e.Accepted)
}

// PersistenceError is a state-store failure. When it happens after a
// successful HTTP call the watermark is stale relative to reality, so the
// scheduler treats it as high severity.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state store %s: %s", e.Op, e.Err.Error())
}
func (e *PersistenceError) Unwrap() error { return e.Err }

// Error kind labels, used for logs, metrics, and report events.
const (
	KindDefinition       = "definition"
	KindMissingSource    = "missing_source"
	KindUnresolvedEnv    = "unresolved_env"
	KindTransport        = "transport"
	KindUnexpectedStatus = "unexpected_status"
	KindPersistence      = "persistence"
	KindCancelled        = "cancelled"
	KindInternal         = "internal"
)

// Kind classifies err into one of the error kind labels.
func Kind(err error) string {
	var (
		def     *DefinitionError
		envSyn  *InvalidEnvSyntaxError
		src     *MissingSourceError
		env     *UnresolvedEnvError
		tr      *TransportError
		status  *UnexpectedStatusError
		persist *PersistenceError
	)
	switch {
	case errors.As(err, &def), errors.As(err, &envSyn):
		return KindDefinition
	case errors.As(err, &src):
		return KindMissingSource
	case errors.As(err, &env):
		return KindUnresolvedEnv
	case errors.As(err, &tr):
		return KindTransport
	case errors.As(err, &status):
		return KindUnexpectedStatus
	case errors.As(err, &persist):
		return KindPersistence
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	}
	return KindInternal
}

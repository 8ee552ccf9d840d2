package resolve

import (
	"time"

	"github.com/capybara-rs/scheduler/internal/domain"
)

// TimeFormat is how source timestamps render inside resolved values:
// extended date-time with a UTC offset, e.g. 2024-01-01T00:00:00Z.
const TimeFormat = time.RFC3339

// Context carries the per-cycle inputs resolution needs. It is built fresh
// for every execution attempt and discarded afterwards; the resolver never
// reads the environment or the clock directly.
type Context struct {
	// Now is the current cycle's timestamp.
	Now time.Time
	// LastExecuteTime is the previous successful cycle's timestamp, nil on
	// the task's first ever run.
	LastExecuteTime *time.Time
	// Environment is the read-only variable snapshot for this cycle.
	Environment map[string]string
}

func (c *Context) env(name string) (string, error) {
	v, ok := c.Environment[name]
	if !ok {
		return "", &domain.UnresolvedEnvError{Name: name}
	}
	return v, nil
}

func (c *Context) source(s domain.Source) (string, error) {
	switch s {
	case domain.SourceExecuteTime:
		return c.Now.Format(TimeFormat), nil
	case domain.SourceLastExecuteTime:
		if c.LastExecuteTime == nil {
			return "", &domain.MissingSourceError{Source: s}
		}
		return c.LastExecuteTime.Format(TimeFormat), nil
	}
	return "", &domain.MissingSourceError{Source: s}
}

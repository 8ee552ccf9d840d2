// Package store persists per-task execution watermarks: the timestamp of
// each task's last successful cycle, durable across restarts.
package store

import (
	"context"
	"sync"
	"time"
)

// Store is the read/write contract for execution records. Get returns
// (zero, false, nil) for a task that has never succeeded. Implementations
// must tolerate concurrent use for distinct task names; same-name write
// ordering is provided by Serialized.
type Store interface {
	Get(ctx context.Context, taskName string) (time.Time, bool, error)
	Put(ctx context.Context, taskName string, t time.Time) error
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]time.Time
}

// NewMemory returns an in-process Store. Used by tests and by the run
// command, where durability across restarts does not matter.
func NewMemory() Store {
	return &memoryStore{records: make(map[string]time.Time)}
}

func (s *memoryStore) Get(_ context.Context, taskName string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.records[taskName]
	return t, ok, nil
}

func (s *memoryStore) Put(_ context.Context, taskName string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[taskName] = t
	return nil
}

package store

import (
	"context"
	"sync"
	"time"
)

type serialized struct {
	next Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Serialized wraps a Store so that writes for the same task name never
// overlap: a slow Put cannot be overtaken by a newer one and leave a stale
// watermark behind. Writes for distinct names proceed in parallel, and reads
// are passed through untouched.
func Serialized(next Store) Store {
	return &serialized{next: next, locks: make(map[string]*sync.Mutex)}
}

func (s *serialized) lockFor(taskName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[taskName]
	if !ok {
		l = &sync.Mutex{}
		s.locks[taskName] = l
	}
	return l
}

func (s *serialized) Get(ctx context.Context, taskName string) (time.Time, bool, error) {
	return s.next.Get(ctx, taskName)
}

func (s *serialized) Put(ctx context.Context, taskName string, t time.Time) error {
	l := s.lockFor(taskName)
	l.Lock()
	defer l.Unlock()
	return s.next.Put(ctx, taskName, t)
}

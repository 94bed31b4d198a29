package session

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time

	writes int
}

type entry struct {
	st  State
	exp time.Time
}

// sweep expired entries every this many creates
const sweepEvery = 256

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:   make(map[string]entry),
		now: time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, id string, st State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[id] = entry{st: copyState(st), exp: s.now().Add(ttl)}

	s.writes++
	if s.writes%sweepEvery == 0 {
		s.sweepLocked()
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[id]
	if !ok {
		return State{}, ErrNotFound
	}

	if s.now().After(e.exp) {
		delete(s.m, id)
		return State{}, ErrNotFound
	}

	return copyState(e.st), nil
}

func (s *MemoryStore) Save(_ context.Context, id string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[id]
	if !ok || s.now().After(e.exp) {
		delete(s.m, id)
		return ErrNotFound
	}

	e.st = copyState(st)
	s.m[id] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
	return nil
}

// Len reports live and not-yet-swept sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for id, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, id)
		}
	}
}

func copyState(st State) State {
	if st.Flashes != nil {
		st.Flashes = append([]Flash(nil), st.Flashes...)
	}
	return st
}

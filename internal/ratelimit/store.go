package ratelimit

import (
	"sync"
	"time"
)

// Window is one client's admission record for the current fixed window.
// Expired windows are replaced, never mutated in place.
type Window struct {
	Count int
	Start time.Time
}

// Store is the injected keyed window storage. Update must apply fn
// atomically with respect to concurrent calls for the same client, and
// Sweep must not interleave with an in-flight Update for the same entry.
type Store interface {
	Update(clientID string, fn func(w Window, ok bool) Window) error
	Sweep(cutoff time.Time) (int, error)
	Len() (int, error)
}

// MemoryStore keeps windows in a mutex-guarded map.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]Window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]Window)}
}

func (s *MemoryStore) Update(clientID string, fn func(w Window, ok bool) Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[clientID]
	s.windows[clientID] = fn(w, ok)
	return nil
}

// Sweep removes windows that started before cutoff and reports how many
// entries were evicted.
func (s *MemoryStore) Sweep(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, w := range s.windows {
		if !w.Start.After(cutoff) {
			delete(s.windows, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows), nil
}

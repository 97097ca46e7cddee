package expr

import (
	"maps"
	"sync"
)

// Scratch is a mutable key/value map handed to expressions.
type Scratch struct {
	mu sync.Mutex
	m  map[string]any
}

// NewScratch returns an empty scratch map.
func NewScratch() *Scratch {
	return &Scratch{m: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *Scratch) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores value under key.
func (s *Scratch) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

// Snapshot returns a copy of the current contents.
func (s *Scratch) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.m)
}

// with runs fn holding the lock; fn may replace the whole map.
func (s *Scratch) with(fn func(m map[string]any) map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next := fn(s.m); next != nil {
		s.m = next
	}
}

package repository

import (
	"sync"

	"github.com/vibin/lead-assistant/internal/core/ports"
)

// MemorySessionStore implements ports.SessionStore with a map guarded by a
// single RWMutex
type MemorySessionStore[K comparable, V any] struct {
	items map[K]V
	mutex sync.RWMutex
}

var _ ports.SessionStore[string, int] = (*MemorySessionStore[string, int])(nil)

// NewMemorySessionStore creates an empty store
func NewMemorySessionStore[K comparable, V any]() *MemorySessionStore[K, V] {
	return &MemorySessionStore[K, V]{
		items: make(map[K]V),
	}
}

// Get returns the value stored for key
func (s *MemorySessionStore[K, V]) Get(key K) (V, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	v, ok := s.items[key]
	return v, ok
}

// Put stores value under key, replacing any previous value
func (s *MemorySessionStore[K, V]) Put(key K, value V) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.items[key] = value
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *MemorySessionStore[K, V]) Delete(key K) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.items, key)
}

// Len returns the number of stored entries
func (s *MemorySessionStore[K, V]) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.items)
}

// Range iterates over a snapshot so fn may call back into the store
func (s *MemorySessionStore[K, V]) Range(fn func(key K, value V) bool) {
	s.mutex.RLock()
	keys := make([]K, 0, len(s.items))
	values := make([]V, 0, len(s.items))
	for k, v := range s.items {
		keys = append(keys, k)
		values = append(values, v)
	}
	s.mutex.RUnlock()

	for i := range keys {
		if !fn(keys[i], values[i]) {
			return
		}
	}
}

// Compute performs an atomic read-modify-write of key
func (s *MemorySessionStore[K, V]) Compute(key K, fn func(value V, ok bool) (V, bool)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.items[key]
	next, keep := fn(current, ok)
	if keep {
		s.items[key] = next
		return
	}
	delete(s.items, key)
}

// DeleteFunc removes every entry matching fn
func (s *MemorySessionStore[K, V]) DeleteFunc(fn func(key K, value V) bool) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for k, v := range s.items {
		if fn(k, v) {
			delete(s.items, k)
			removed++
		}
	}
	return removed
}

/*
Package cache implements the bounded stores used to memoize decoded images,
palette classification, rendered fragments and upscaled base tiles.

Each store evicts its least recently used entry once it is full. Reading an
entry promotes it. A stored zero value, such as a nil pointer recording that
there was nothing to draw, is a hit and is distinct from a miss.
*/
package cache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is a bounded least recently used key/value store. It is safe for
// concurrent use; concurrent writers of the same key are last write wins.
type Store[K comparable, V any] struct {
	name   string
	size   int
	lru    *lru.Cache[K, V]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns an empty store holding at most size entries.
func New[K comparable, V any](name string, size int) (*Store[K, V], error) {
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &Store[K, V]{
		name: name,
		size: size,
		lru:  c,
	}, nil
}

// Get returns the value stored under key and promotes it.
func (s *Store[K, V]) Get(key K) (V, bool) {
	v, ok := s.lru.Get(key)
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key, evicting the oldest entry if the store is
// full.
func (s *Store[K, V]) Set(key K, value V) {
	s.lru.Add(key, value)
}

// Len returns the number of entries.
func (s *Store[K, V]) Len() int {
	return s.lru.Len()
}

// Clear removes every entry.
func (s *Store[K, V]) Clear() {
	s.lru.Purge()
}

// Stats describes a store's occupancy and hit rate.
type Stats struct {
	Name   string `json:"name"`
	Len    int    `json:"len"`
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats returns a snapshot of the store's counters.
func (s *Store[K, V]) Stats() Stats {
	return Stats{
		Name:   s.name,
		Len:    s.lru.Len(),
		Size:   s.size,
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
}

// Set is an unbounded set of strings.
type Set struct {
	mu sync.RWMutex
	m  map[string]struct{}
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{m: make(map[string]struct{})}
}

// Has reports whether key is in the set.
func (s *Set) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[key]
	return ok
}

// Add inserts key and reports whether it was not already present.
func (s *Set) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return false
	}
	s.m[key] = struct{}{}
	return true
}

// Len returns the number of members.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Clear removes every member.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]struct{})
}

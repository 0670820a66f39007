package store

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is an in-memory CacheStore with the same locking semantics as
// FileCache. Saves counts completed writes.
type MemoryCache struct {
	mu    sync.Mutex
	data  Cache
	saves atomic.Int64
}

// NewMemoryCache creates a cache store seeded with a copy of initial.
func NewMemoryCache(initial Cache) *MemoryCache {
	if initial == nil {
		initial = Cache{}
	}
	return &MemoryCache{data: initial.Clone()}
}

// Load returns a copy of the cache.
func (s *MemoryCache) Load() (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone(), nil
}

// Save replaces the cache.
func (s *MemoryCache) Save(c Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = c.Clone()
	s.saves.Add(1)
	return nil
}

// Update performs a locked read-modify-write.
func (s *MemoryCache) Update(fn func(Cache) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.data.Clone()
	changed, err := fn(c)
	if err != nil || !changed {
		return err
	}
	s.data = c
	s.saves.Add(1)
	return nil
}

// Saves returns how many times the cache was written.
func (s *MemoryCache) Saves() int { return int(s.saves.Load()) }

// MemoryQueue is an in-memory QueueStore.
type MemoryQueue struct {
	mu   sync.Mutex
	data []QueueEntry
	seq  atomic.Int64
}

// NewMemoryQueue creates an empty queue store.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{data: []QueueEntry{}}
}

// Load returns a copy of the queue.
func (s *MemoryQueue) Load() ([]QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QueueEntry{}, s.data...), nil
}

// Save replaces the queue.
func (s *MemoryQueue) Save(q []QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]QueueEntry{}, q...)
	return nil
}

// Append adds one entry.
func (s *MemoryQueue) Append(e QueueEntry) error {
	e = prepareQueueEntry(e, s.nextID, time.Now)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, e)
	return nil
}

// Update performs a locked read-modify-write.
func (s *MemoryQueue) Update(fn func([]QueueEntry) ([]QueueEntry, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, changed, err := fn(append([]QueueEntry{}, s.data...))
	if err != nil || !changed {
		return err
	}
	s.data = append([]QueueEntry{}, next...)
	return nil
}

func (s *MemoryQueue) nextID() string {
	return "q" + strconv.FormatInt(s.seq.Add(1), 10)
}

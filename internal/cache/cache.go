// Package cache holds small read-through caches owned by the server.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a keyed store with expiry.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool, error)
	Set(ctx context.Context, key K, value V) error
	Delete(ctx context.Context, key K) error
}

// Clock abstracts time for expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Memory is an in-process Cache. Expired entries are evicted lazily.
type Memory[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	entries map[K]entry[V]
}

func NewMemory[K comparable, V any](ttl time.Duration, clock Clock) *Memory[K, V] {
	if clock == nil {
		clock = SystemClock
	}
	return &Memory[K, V]{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[K]entry[V]),
	}
}

func (m *Memory[K, V]) Get(_ context.Context, key K) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false, nil
	}
	if !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		var zero V
		return zero, false, nil
	}
	return e.value, true, nil
}

func (m *Memory[K, V]) Set(_ context.Context, key K, value V) error {
	m.mu.Lock()
	m.entries[key] = entry[V]{value: value, expires: m.clock.Now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory[K, V]) Delete(_ context.Context, key K) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Package cache provides a small key/value cache with expiry, backed by
// Redis or process memory, and the cached marketplace role lookup.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores string values with a time to live.
type Cache interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the time source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

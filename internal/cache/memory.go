package cache

import (
	"context"
	"sync"
	"time"

	"github.com/poc/grpc-services/internal/clock"
)

type memoryEntry struct {
	value    string
	deadline time.Time
}

// Memory is an in-process Store. Expiry is checked on read; expired entries
// are dropped lazily. Used in dev and test mode when no Redis is configured.
type Memory struct {
	clk clock.Clock

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemory(clk clock.Clock) *Memory {
	return &Memory{clk: clk, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if m.clk.Now().Before(entry.deadline) {
		return entry.value, true, nil
	}

	// Re-check under the write lock: a concurrent Set may have refreshed the
	// entry between the read above and here, and that entry must survive.
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok = m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.clk.Now().Before(entry.deadline) {
		return entry.value, true, nil
	}
	delete(m.entries, key)
	return "", false, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, deadline: m.clk.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

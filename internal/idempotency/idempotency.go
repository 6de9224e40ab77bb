// Package idempotency remembers successful replies by key so a retried
// webhook delivery is answered without creating a second event.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a reply is remembered when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Store keeps encoded replies by idempotency key.
type Store interface {
	// Get returns the stored value and whether one was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores value under key unless a value is already present.
	Put(ctx context.Context, key string, value []byte) error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is an in-process Store with per-entry expiry. Safe for
// concurrent use.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates a store whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns a copy of the stored value if it has not expired.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Put stores value under key; an unexpired existing value wins.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return nil
	}
	m.entries[key] = memoryEntry{
		value:   append([]byte(nil), value...),
		expires: now.Add(m.ttl),
	}
	return nil
}

// Len reports the number of entries, expired ones included until pruned.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) pruneLocked(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}

package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a thread-safe in-process cache backend. Entries are stored
// in their encoded form so Get always returns an independent copy, matching
// the behavior of the redis backend.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	closed  bool

	// now is swappable for expiry tests.
	now func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache with the given TTL. A zero or
// negative TTL means entries never expire.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements Cache.
func (m *MemoryCache) Get(ctx context.Context, key Key) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	stored, ok := m.entries[key.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !stored.expiresAt.IsZero() && m.now().After(stored.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key.String())
		m.mu.Unlock()
		return nil, false, nil
	}

	entry, err := DecodeEntry(stored.data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Set implements Cache.
func (m *MemoryCache) Set(ctx context.Context, key Key, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := entry.Encode()
	if err != nil {
		return err
	}

	var expiresAt time.Time
	if m.ttl > 0 {
		expiresAt = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.String()] = memoryEntry{data: data, expiresAt: expiresAt}
	return nil
}

// Delete implements Cache.
func (m *MemoryCache) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key.String())
	return nil
}

// Len returns the number of stored entries, including any not yet swept.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Cache.
func (m *MemoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	m.closed = true
	return nil
}

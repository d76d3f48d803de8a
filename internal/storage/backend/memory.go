package backend

import (
	"context"
	"sync"
	"time"

	"github.com/xtxerr/strata/internal/storage/types"
)

// Memory is the in-process tier: a mutex-guarded map with optional entry
// TTL and a size bound. When full, the oldest entry is evicted to make
// room; the memory tier is a cache, not a durable store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]types.Envelope
	order   []string // insertion order, oldest first

	maxBytes int64
	curBytes int64
	ttl      time.Duration
}

// NewMemory creates a memory backend. maxBytes of zero means unbounded;
// ttl of zero means entries never expire.
func NewMemory(maxBytes int64, ttl time.Duration) *Memory {
	return &Memory{
		entries:  make(map[string]types.Envelope),
		maxBytes: maxBytes,
		ttl:      ttl,
	}
}

// Tier returns TierMemory.
func (m *Memory) Tier() types.Tier { return types.TierMemory }

// Get returns the envelope for key, honoring the tier TTL lazily.
func (m *Memory) Get(_ context.Context, key string) (types.Envelope, bool, error) {
	m.mu.RLock()
	env, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return types.Envelope{}, false, nil
	}

	if m.expired(env) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && m.expired(cur) {
			m.removeLocked(key)
		}
		m.mu.Unlock()
		return types.Envelope{}, false, nil
	}

	return env, true, nil
}

// Set stores an envelope, evicting oldest entries if the size bound
// would be exceeded.
func (m *Memory) Set(_ context.Context, key string, env types.Envelope) error {
	size := envelopeSize(env)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		m.removeLocked(key)
	}

	if m.maxBytes > 0 {
		for m.curBytes+size > m.maxBytes && len(m.order) > 0 {
			m.removeLocked(m.order[0])
		}
	}

	m.entries[key] = env
	m.order = append(m.order, key)
	m.curBytes += size
	return nil
}

// Delete removes a key.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	m.removeLocked(key)
	return true, nil
}

// Exists reports whether a key is present and unexpired.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close releases nothing; the memory tier holds no external resources.
func (m *Memory) Close() error { return nil }

func (m *Memory) expired(env types.Envelope) bool {
	if m.ttl <= 0 {
		return false
	}
	return time.Since(env.StoredAt()) > m.ttl
}

// removeLocked deletes an entry and its order slot. Caller must hold m.mu.
func (m *Memory) removeLocked(key string) {
	env, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	m.curBytes -= envelopeSize(env)

	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func envelopeSize(env types.Envelope) int64 {
	return int64(len(env.Data)) + int64(len(env.Algorithm)) + 48
}

package kvs

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/melophiliacs/internal/shared"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore keeps entries in a map and sweeps expired ones in the background.
// Contents are lost when the process exits.
type MemoryStore struct {
	keyspace
	mu      sync.RWMutex
	entries map[string]memoryEntry
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMemoryStore creates a [MemoryStore] and starts its cleanup loop.
func NewMemoryStore(prefix string, cfg shared.MemoryConfig) *MemoryStore {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	m := &MemoryStore{
		keyspace: keyspace(prefix),
		entries:  make(map[string]memoryEntry),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.sweep(interval)
	return m
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrClosed
	}

	entry, ok := m.entries[m.key(key)]
	if !ok || entry.expired(time.Now()) {
		return nil, false, nil
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[m.key(key)] = memoryEntry{value: stored, expiresAt: expiry(ttl)}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	for _, key := range keys {
		delete(m.entries, m.key(key))
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Len returns the number of live entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, e := range m.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.entries = nil
	m.mu.Unlock()

	close(m.stop)
	<-m.done
	return nil
}

func (m *MemoryStore) sweep(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryStore) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
		}
	}
}

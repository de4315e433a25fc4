// Package kvs provides the key-value store behind sessions and cached collections,
// with memory, Redis, LevelDB, and SQLite implementations.
package kvs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melophiliacs/internal/shared"
)

// Store is a key-value store with per-key TTL. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	// An expired key is reported as not found; a stored empty value is found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A ttl of zero or less means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend. Later calls return [ErrClosed].
	Close() error
}

// ErrClosed is returned when an operation is attempted on a closed store.
var ErrClosed = errors.New("kvs: store is closed")

// New creates the [Store] selected by cfg.Type. An empty type selects the memory store.
func New(cfg shared.StoreConfig, logger *log.Logger) (Store, error) {
	prefix := ""
	if cfg.Namespace != "" {
		prefix = cfg.Namespace + ":"
	}

	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(prefix, cfg.Memory), nil
	case "redis":
		return NewRedisStore(prefix, cfg.Redis)
	case "leveldb":
		return NewLevelDBStore(prefix, cfg.LevelDB, logger)
	case "sqlite":
		return NewSQLiteStore(prefix, cfg.SQLite, logger)
	default:
		return nil, fmt.Errorf("%w: unknown store type %q", shared.ErrInvalidConfig, cfg.Type)
	}
}

type keyspace string

func (k keyspace) key(key string) string {
	return string(k) + key
}

func (k keyspace) keys(keys []string) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = k.key(key)
	}
	return out
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

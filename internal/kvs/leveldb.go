package kvs

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is a [Store] persisted in a LevelDB directory.
//
// Each value is stored behind an 8-byte big-endian header holding its expiry in unix nanoseconds (0 = never).
type LevelDBStore struct {
	keyspace
	db     *leveldb.DB
	logger *log.Logger
	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// NewLevelDBStore opens (or recovers) the database at cfg.Path and starts its cleanup loop.
func NewLevelDBStore(prefix string, cfg shared.LevelDBConfig, logger *log.Logger) (*LevelDBStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: store.leveldb.path is required", shared.ErrInvalidConfig)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("kvs/leveldb: failed to create directory: %w", err)
	}

	db, err := leveldb.OpenFile(cfg.Path, &opt.Options{Compression: opt.SnappyCompression})
	if lerrors.IsCorrupted(err) {
		logger.Warn("leveldb corrupted, attempting recovery", "path", cfg.Path)
		db, err = leveldb.RecoverFile(cfg.Path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("kvs/leveldb: failed to open database at %s: %w", cfg.Path, err)
	}

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	l := &LevelDBStore{
		keyspace: keyspace(prefix),
		db:       db,
		logger:   logger.With("component", "kvs/leveldb"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.sweep(interval)
	return l, nil
}

func encodeEntry(value []byte, ttl time.Duration) []byte {
	var expiresAt int64
	if exp := expiry(ttl); !exp.IsZero() {
		expiresAt = exp.UnixNano()
	}

	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt))
	copy(buf[8:], value)
	return buf
}

// decodeEntry returns the value and whether it has expired at now.
func decodeEntry(buf []byte, now time.Time) ([]byte, bool, error) {
	if len(buf) < 8 {
		return nil, false, fmt.Errorf("kvs/leveldb: invalid entry (%d bytes)", len(buf))
	}
	expiresAt := int64(binary.BigEndian.Uint64(buf[:8]))
	if expiresAt > 0 && now.UnixNano() > expiresAt {
		return nil, true, nil
	}
	return buf[8:], false, nil
}

func (l *LevelDBStore) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

func (l *LevelDBStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if l.isClosed() {
		return nil, false, ErrClosed
	}

	buf, err := l.db.Get([]byte(l.key(key)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvs/leveldb: get failed: %w", err)
	}

	value, expired, err := decodeEntry(buf, time.Now())
	if err != nil {
		return nil, false, err
	}
	if expired {
		return nil, false, nil
	}
	return value, true, nil
}

func (l *LevelDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if l.isClosed() {
		return ErrClosed
	}
	if err := l.db.Put([]byte(l.key(key)), encodeEntry(value, ttl), nil); err != nil {
		return fmt.Errorf("kvs/leveldb: set failed: %w", err)
	}
	return nil
}

func (l *LevelDBStore) Delete(ctx context.Context, keys ...string) error {
	if l.isClosed() {
		return ErrClosed
	}

	batch := new(leveldb.Batch)
	for _, key := range keys {
		batch.Delete([]byte(l.key(key)))
	}
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("kvs/leveldb: delete failed: %w", err)
	}
	return nil
}

func (l *LevelDBStore) Ping(ctx context.Context) error {
	if l.isClosed() {
		return ErrClosed
	}
	if _, err := l.db.GetProperty("leveldb.stats"); err != nil {
		return fmt.Errorf("kvs/leveldb: ping failed: %w", err)
	}
	return nil
}

func (l *LevelDBStore) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	close(l.stop)
	<-l.done
	return l.db.Close()
}

func (l *LevelDBStore) sweep(interval time.Duration) {
	defer close(l.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := l.removeExpired(); err != nil {
				l.logger.Warn("cleanup failed", "error", err)
			} else if n > 0 {
				l.logger.Debug("removed expired entries", "count", n)
			}
		case <-l.stop:
			return
		}
	}
}

func (l *LevelDBStore) removeExpired() (int, error) {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(l.keyspace)), nil)
	defer iter.Release()

	now := time.Now()
	batch := new(leveldb.Batch)
	for iter.Next() {
		if _, expired, err := decodeEntry(iter.Value(), now); err == nil && expired {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			batch.Delete(key)
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	return batch.Len(), l.db.Write(batch, nil)
}

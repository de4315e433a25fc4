package kvs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melophiliacs/internal/shared"
)

// SQLiteStore is a [Store] kept in the kv_entries table of a SQLite database.
// The schema is created by [shared.RunMigrations] when the store opens.
type SQLiteStore struct {
	keyspace
	db     *sql.DB
	logger *log.Logger
	closed atomic.Bool
	stop   chan struct{}
	done   chan struct{}
}

// NewSQLiteStore opens the database at cfg.Path, migrates it, and starts the expiry cleanup loop.
func NewSQLiteStore(prefix string, cfg shared.SQLiteConfig, logger *log.Logger) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: store.sqlite.path is required", shared.ErrInvalidConfig)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("kvs/sqlite: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.Path, cfg.MaxOpenConns, cfg.MaxIdleConns)

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvs/sqlite: %w", err)
	}

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s := &SQLiteStore{
		keyspace: keyspace(prefix),
		db:       db,
		logger:   logger.With("component", "kvs/sqlite"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.sweep(interval)
	return s, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv_entries WHERE key = ? AND (expires_at = 0 OR expires_at > ?)",
		s.key(key), time.Now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvs/sqlite: get failed: %w", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var expiresAt int64
	if exp := expiry(ttl); !exp.IsZero() {
		expiresAt = exp.UnixNano()
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = CURRENT_TIMESTAMP`,
		s.key(key), value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("kvs/sqlite: set failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}

	args := make([]any, len(keys))
	for i, k := range s.keys(keys) {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE key IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("kvs/sqlite: delete failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("kvs/sqlite: ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(s.stop)
	<-s.done
	return s.db.Close()
}

func (s *SQLiteStore) sweep(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.db.Exec("DELETE FROM kv_entries WHERE expires_at > 0 AND expires_at <= ?", time.Now().UnixNano())
			if err != nil {
				s.logger.Warn("cleanup failed", "error", err)
				continue
			}
			if n, _ := res.RowsAffected(); n > 0 {
				s.logger.Debug("removed expired entries", "count", n)
			}
		case <-s.stop:
			return
		}
	}
}

package kvs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a [Store] backed by a single pooled Redis client shared by the whole process.
// Expiry uses native Redis TTLs.
type RedisStore struct {
	keyspace
	client *redis.Client
	closed atomic.Bool
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(prefix string, cfg shared.RedisConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kvs/redis: failed to connect to %s: %w", cfg.Addr, err)
	}

	return NewRedisStoreFromClient(prefix, client), nil
}

// NewRedisStoreFromClient wraps an existing client. Closing the store closes the client.
func NewRedisStoreFromClient(prefix string, client *redis.Client) *RedisStore {
	return &RedisStore{keyspace: keyspace(prefix), client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.closed.Load() {
		return nil, false, ErrClosed
	}

	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvs/redis: get failed: %w", err)
	}
	return value, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.closed.Load() {
		return ErrClosed
	}

	// go-redis treats a negative expiration as KEEPTTL
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("kvs/redis: set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, r.keys(keys)...).Err(); err != nil {
		return fmt.Errorf("kvs/redis: delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kvs/redis: ping failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return r.client.Close()
}

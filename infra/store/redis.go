package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amirasaad/btcfx/pkg/store"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements store.Store using Redis strings.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore connects to the Redis instance at url, e.g.
// redis://localhost:6379/0.
func NewRedisStore(url, prefix string, logger *slog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreWithOptions(opt, prefix, logger), nil
}

// NewRedisStoreWithOptions creates a RedisStore from redis.Options.
func NewRedisStoreWithOptions(opt *redis.Options, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: redis.NewClient(opt),
		prefix: prefix,
		logger: logger.With("component", "redis_store"),
	}
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Redis store miss", "key", key)
		return nil, store.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Redis store get error", "key", key, "error", err)
		return nil, err
	}
	r.logger.Debug("Redis store hit", "key", key, "bytes", len(val))
	return val, nil
}

// Set stores value without expiry. Age is enforced by the snapshot
// timestamp.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		r.logger.Error("Redis store set error", "key", key, "error", err)
		return err
	}
	r.logger.Debug("Redis store set", "key", key, "bytes", len(value))
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Error("Redis store delete error", "key", key, "error", err)
		return err
	}
	return nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

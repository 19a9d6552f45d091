package kv

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a go-redis client. All keys are namespaced
// with a prefix so multiple stores can share one database.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedis wraps an existing go-redis client. Keys are stored as
// "<prefix>:<key>"; an empty prefix uses keys unmodified.
func NewRedis(rdb *goredis.Client, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) fullKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// Get returns the value for key, reporting whether it existed.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, r.fullKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kv redis get %q: %w", key, err)
	}
	return val, true, nil
}

// Set stores value under key without expiration.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.fullKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("kv redis set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is a no-op.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("kv redis remove %q: %w", key, err)
	}
	return nil
}

var _ Store = (*Redis)(nil)

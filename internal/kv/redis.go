package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace is the redis hash holding the client's settings.
const DefaultNamespace = "screenbreakers:settings"

// Redis is a Store backed by one redis hash. A usage recorder and the client
// process can share it.
type Redis struct {
	rdb       *redis.Client
	namespace string
}

// NewRedis wraps an existing client. An empty namespace selects DefaultNamespace.
func NewRedis(rdb *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Redis{rdb: rdb, namespace: namespace}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.HGet(ctx, r.namespace, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to HGET %s/%s: %w", r.namespace, key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.HSet(ctx, r.namespace, key, value).Err(); err != nil {
		return fmt.Errorf("failed to HSET %s/%s: %w", r.namespace, key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.rdb.HDel(ctx, r.namespace, key).Err(); err != nil {
		return fmt.Errorf("failed to HDEL %s/%s: %w", r.namespace, key, err)
	}
	return nil
}

// Incr atomically adds delta to an integer field and returns the new value.
func (r *Redis) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := r.rdb.HIncrBy(ctx, r.namespace, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to HINCRBY %s/%s: %w", r.namespace, key, err)
	}
	return v, nil
}

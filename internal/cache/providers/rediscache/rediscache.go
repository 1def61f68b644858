// Package rediscache is the optional Redis-backed response-cache backend,
// registered under the name "redis". It is grounded on the teacher's
// memory/stores/redis/redis.go (github.com/redis/go-redis/v9 client,
// JSON-encoded values) adapted from a message store to a generic
// cache.Backend: plain string keys with an encoded payload and a native
// Redis TTL instead of a sorted set.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/cache"
)

func init() {
	cache.Register("redis", func(cfg cache.Config) (cache.Backend, error) {
		if cfg.RedisAddr == "" {
			return nil, errors.New("rediscache: redis_addr is required")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return New(client, cfg.TTL), nil
	})
}

// keyPrefix namespaces cache entries so Clear can scan-and-delete only this
// service's keys from a shared Redis instance.
const keyPrefix = "ragd:cache:"

// Backend is a Redis-backed cache.Backend. Values are JSON-encoded before
// storage, so only JSON-marshalable types may be cached.
type Backend struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// New builds a Backend over an existing Redis client.
func New(client *redis.Client, defaultTTL time.Duration) *Backend {
	return &Backend{client: client, defaultTTL: defaultTTL}
}

func (b *Backend) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := b.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.New("rediscache.Get", apperr.KindCache, err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, apperr.New("rediscache.Get", apperr.KindCache, err)
	}
	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl == 0 {
		ttl = b.defaultTTL
	}
	if ttl < 0 {
		ttl = 0 // redis treats 0 as "no expiration"
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return apperr.New("rediscache.Set", apperr.KindCache, err)
	}
	if err := b.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return apperr.New("rediscache.Set", apperr.KindCache, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return apperr.New("rediscache.Delete", apperr.KindCache, err)
	}
	return nil
}

// Clear scans and deletes every key under this service's namespace. It does
// not touch other keys that may share the same Redis instance.
func (b *Backend) Clear(ctx context.Context) error {
	iter := b.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return apperr.New("rediscache.Clear", apperr.KindCache, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return apperr.New("rediscache.Clear", apperr.KindCache, err)
	}
	return nil
}

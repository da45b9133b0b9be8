package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis caches entries in a shared Redis instance so multiple replicas see
// the same policy cache. Failures degrade to cache misses.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return value, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	// Best effort; a failed set only costs a later cache miss.
	r.client.Set(ctx, r.prefix+key, value, ttl)
}

func (r *Redis) Delete(ctx context.Context, keys ...string) {
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.prefix + key
	}
	r.client.Del(ctx, prefixed...)
}

package cache

import (
	"context"
	"time"
)

// Cache is a small TTL key-value cache used for read-side lookups (policy
// resolution). Entries expire after their TTL; invalidation is best-effort
// and never required for correctness.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (Noop) Set(context.Context, string, []byte, time.Duration) {}

func (Noop) Delete(context.Context, ...string) {}

// Package cache provides the TTL'd key-value stores used for validation
// results and order reads, with in-process and Redis backends.
package cache

import (
	"context"
	"time"
)

// Store is a TTL'd string store. Get reports a miss with found=false; an
// expired entry is a miss. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

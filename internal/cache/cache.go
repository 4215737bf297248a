// Package cache provides the non-durable tiers in front of the store: an
// in-process LRU, a shared redis tier, and the per-unit extraction lock.
// Tiers are invalidateable derivations; the durable store stays authoritative.
package cache

import (
	"context"
	"time"
)

// Tier is one cache level. TTL is a property of the tier, fixed at
// construction; payloads are opaque encoded bytes.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

// Locker is the mutual-exclusion primitive for extraction: a short-TTL token
// keyed by unit id. Acquire never blocks; a held lock reports ok=false.
// Release is ownership-checked so an expired holder cannot free a lock a
// later caller re-acquired.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

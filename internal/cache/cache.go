// Package cache provides the TTL cache used for index pages and metadata
// resources, with file, redis, and disabled backends.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores fetched page and metadata bytes keyed by URL. A failing or
// corrupt backend reads as a miss; resolution never depends on the cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Close() error
}

// hashKey maps an arbitrary key to a fixed-size hex name safe for file
// paths and redis keys.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Null is a disabled cache: every read misses, writes vanish.
type Null struct{}

func NewNull() Null {
	return Null{}
}

func (Null) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (Null) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return nil
}

func (Null) Close() error {
	return nil
}

var _ Cache = Null{}

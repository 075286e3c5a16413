package cache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis caches entries in a redis instance, for sharing one page cache
// across parallel runs on build machines.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to the redis URL ("redis://host:port/db"). Keys are
// namespaced under the given prefix.
func NewRedis(url, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if prefix == "" {
		prefix = "pydl:"
	}
	return &Redis{client: redis.NewClient(opt), prefix: prefix}, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+hashKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		// Backend trouble reads as a miss; the caller refetches.
		return nil, false, nil
	}
	return data, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+hashKey(key), data, ttl).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

var _ Cache = (*Redis)(nil)

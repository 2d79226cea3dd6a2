package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/atalho/atalho-url/internal/processing/shortener"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "url:"

// LinkCache is a TTL cache for resolved links backed by Redis.
// Entries expire at a fixed absolute deadline set when the entry is
// written; reads never refresh the TTL.
type LinkCache struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
}

func NewLinkCache(addr, password string, db int, ttl, opTimeout time.Duration) *LinkCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &LinkCache{
		client:    client,
		ttl:       ttl,
		opTimeout: opTimeout,
	}
}

// Get returns the cached link, or (nil, nil) on a miss. Errors indicate
// the cache was unreachable; callers treat that the same as a miss.
func (c *LinkCache) Get(ctx context.Context, code string) (*shortener.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, keyPrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var link shortener.Link
	if err := json.Unmarshal(data, &link); err != nil {
		// A corrupt entry is dropped so the next read repopulates it.
		_ = c.client.Del(ctx, keyPrefix+code).Err()
		return nil, nil
	}
	return &link, nil
}

func (c *LinkCache) Put(ctx context.Context, link *shortener.Link) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	data, err := json.Marshal(link)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+link.Code, data, c.ttl).Err()
}

func (c *LinkCache) Invalidate(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.client.Del(ctx, keyPrefix+code).Err()
}

// Ping reports whether the cache is reachable.
func (c *LinkCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *LinkCache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying connection for components that share it,
// such as the rate limiter.
func (c *LinkCache) Client() *redis.Client {
	return c.client
}

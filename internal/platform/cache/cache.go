// Package cache provides a Redis client wrapper with typed helpers for the
// course catalog and platform settings. The cache is an optimistic local-first
// mirror: reads fall through to the loader on miss, writes are best-effort.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	catalogKey  = "academy:catalog"
	settingsKey = "academy:settings"

	catalogTTL  = 5 * time.Minute
	settingsTTL = time.Minute
)

// Cache wraps a Redis client.
type Cache struct {
	Client *redis.Client
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New creates a new cache client.
func New(ctx context.Context, url string) (*Cache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	return &Cache{Client: client}, nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// SetCatalog stores the serialized course catalog.
func (c *Cache) SetCatalog(ctx context.Context, v any) error {
	return c.setJSON(ctx, catalogKey, v, catalogTTL)
}

// GetCatalog loads the serialized course catalog into dst.
// Returns false on a cache miss.
func (c *Cache) GetCatalog(ctx context.Context, dst any) (bool, error) {
	return c.getJSON(ctx, catalogKey, dst)
}

// SetSettings stores the platform settings record.
func (c *Cache) SetSettings(ctx context.Context, v any) error {
	return c.setJSON(ctx, settingsKey, v, settingsTTL)
}

// GetSettings loads the platform settings record into dst.
// Returns false on a cache miss.
func (c *Cache) GetSettings(ctx context.Context, dst any) (bool, error) {
	return c.getJSON(ctx, settingsKey, dst)
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.Client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

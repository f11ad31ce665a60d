// Package cache stores tagging results keyed by image content hash, so
// unchanged images can be skipped on repeat runs without an API call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// Cache is the result-cache interface. Implementations must be safe for
// concurrent use.
type Cache interface {
	GetTagSet(ctx context.Context, contentHash string) (models.TagSet, bool, error)
	SetTagSet(ctx context.Context, contentHash string, ts models.TagSet, ttl time.Duration) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// TagSetKey builds the Redis key for a content hash.
func TagSetKey(contentHash string) string {
	return fmt.Sprintf("tagset:%s", contentHash)
}

// RateLimitKey builds the Redis key for a client's request counter.
func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}

// HashFile returns the hex SHA-256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) GetTagSet(ctx context.Context, contentHash string) (models.TagSet, bool, error) {
	val, err := c.client.Get(ctx, TagSetKey(contentHash)).Bytes()
	if err == redis.Nil {
		return models.TagSet{}, false, nil
	}
	if err != nil {
		return models.TagSet{}, false, err
	}
	var ts models.TagSet
	if err := json.Unmarshal(val, &ts); err != nil {
		return models.TagSet{}, false, err
	}
	return ts, true, nil
}

func (c *RedisCache) SetTagSet(ctx context.Context, contentHash string, ts models.TagSet, ttl time.Duration) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, TagSetKey(contentHash), data, ttl).Err()
}

// IncrWithExpiry increments a counter, setting the expiry only when the
// counter is created. Used for per-client request limiting.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, expiry).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)

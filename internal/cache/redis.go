package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// OutcomeCache stores sanitization outcomes in Redis keyed by image content
// and redaction policy, so re-uploading the same screenshot skips OCR
type OutcomeCache struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// New creates a new Redis-backed outcome cache and checks the connection
func New(config Config, logger *zap.Logger) (*OutcomeCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	cache := newWithClient(redis.NewClient(opts), config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.client.Ping(ctx).Err(); err != nil {
		cache.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Outcome cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("pool_size", opts.PoolSize),
		zap.Duration("ttl", config.TTL))

	return cache, nil
}

func newWithClient(client *redis.Client, config Config, logger *zap.Logger) *OutcomeCache {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "pixel-sentinel"
	}
	return &OutcomeCache{client: client, config: config, logger: logger}
}

// Key derives the cache key for an image under a redaction policy
func (c *OutcomeCache) Key(image []byte, policy string) string {
	return Key(c.config.KeyPrefix, image, policy)
}

// Key derives a cache key from the image bytes and policy description
func Key(prefix string, image []byte, policy string) string {
	hasher := sha256.New()
	hasher.Write(image)
	hasher.Write([]byte{0})
	hasher.Write([]byte(policy))
	return fmt.Sprintf("%s:outcome:%s", prefix, hex.EncodeToString(hasher.Sum(nil)))
}

// Get returns the cached entry for key. Lookup failures count as misses so
// a broken cache never blocks sanitization.
func (c *OutcomeCache) Get(ctx context.Context, key string) (*Entry, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		c.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false
	} else if err != nil {
		c.errors.Add(1)
		c.misses.Add(1)
		c.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	entry, err := decodeEntry(data)
	if err != nil {
		c.logger.Error("Failed to unmarshal cached outcome", zap.Error(err))
		// Delete corrupted cache entry
		c.client.Del(ctx, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	c.logger.Debug("Cache hit",
		zap.String("key", key),
		zap.Strings("categories", entry.Categories))

	return entry, true
}

// Put stores an entry under key with the configured TTL
func (c *OutcomeCache) Put(ctx context.Context, key string, entry *Entry) error {
	entry.CachedAt = time.Now().UTC()

	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome for caching: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		c.errors.Add(1)
		c.logger.Error("Failed to cache outcome", zap.Error(err))
		return fmt.Errorf("failed to cache outcome: %w", err)
	}

	c.logger.Debug("Outcome cached",
		zap.String("key", key),
		zap.Int("bytes", len(data)))

	return nil
}

// GetStats returns cache performance statistics
func (c *OutcomeCache) GetStats(ctx context.Context) (*Stats, error) {
	stats := c.localStats()

	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to get Redis info: %w", err)
	}
	stats.MemoryUsage = parseUsedMemory(info)

	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

func (c *OutcomeCache) localStats() *Stats {
	stats := &Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Clear removes every key under the configured prefix
func (c *OutcomeCache) Clear(ctx context.Context) (int, error) {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			c.logger.Error("Failed to delete cache keys", zap.Error(err))
			return i, fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return len(keys), nil
}

// Close closes the Redis connection
func (c *OutcomeCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func encodeEntry(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	// the scheme separator is not a password delimiter
	if colon < 0 || strings.HasPrefix(userPart[colon:], "://") {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}

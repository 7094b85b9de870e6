package cache

import (
	"time"

	"github.com/raaihank/pixel-sentinel/internal/geom"
)

// Entry is a cached sanitization outcome. Image holds the redacted PNG and is
// empty when the input passed through unchanged.
type Entry struct {
	Image      []byte     `json:"image,omitempty"`
	Categories []string   `json:"categories"`
	Scanned    bool       `json:"scanned"`
	Reason     string     `json:"reason"`
	Findings   int        `json:"findings"`
	Regions    []geom.Box `json:"regions,omitempty"`
	Method     string     `json:"method"`
	CachedAt   time.Time  `json:"cached_at"`
}

// Stats represents cache performance statistics
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Errors      int64   `json:"errors"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}

// Config contains cache configuration
type Config struct {
	RedisURL     string
	KeyPrefix    string
	TTL          time.Duration
	PoolSize     int
	MinIdleConns int
}

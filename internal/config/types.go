package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Redaction RedactionConfig `yaml:"redaction" mapstructure:"redaction"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Detectors []string        `yaml:"detectors" mapstructure:"detectors"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string        `yaml:"host" mapstructure:"host"`
	Port           int           `yaml:"port" mapstructure:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// RedactionConfig contains the default redaction policy
type RedactionConfig struct {
	Method     string `yaml:"method" mapstructure:"method"` // blur or pixelate
	Padding    int    `yaml:"padding" mapstructure:"padding"`
	BlurKernel int    `yaml:"blur_kernel" mapstructure:"blur_kernel"`
	PixelBlock int    `yaml:"pixel_block" mapstructure:"pixel_block"`
}

// OCRConfig selects and tunes the OCR engine
type OCRConfig struct {
	Engine   string        `yaml:"engine" mapstructure:"engine"` // tesseract or none
	Binary   string        `yaml:"binary" mapstructure:"binary"`
	Language string        `yaml:"language" mapstructure:"language"`
	PSM      int           `yaml:"psm" mapstructure:"psm"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CacheConfig contains redis outcome cache configuration
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL     string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix    string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTL          time.Duration `yaml:"ttl" mapstructure:"ttl"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// AuditConfig contains audit trail database configuration
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Driver          string        `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DSN             string        `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// BatchConfig contains batch sanitization configuration
type BatchConfig struct {
	Workers    int    `yaml:"workers" mapstructure:"workers"`
	OutputDir  string `yaml:"output_dir" mapstructure:"output_dir"`
	ReportName string `yaml:"report_name" mapstructure:"report_name"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string        `yaml:"level" mapstructure:"level"`
	Format string        `yaml:"format" mapstructure:"format"` // json or console
	File   FileLogConfig `yaml:"file" mapstructure:"file"`
}

// FileLogConfig contains the optional log file sink
type FileLogConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Username        string        `yaml:"username" mapstructure:"username"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Events          EventsConfig  `yaml:"events" mapstructure:"events"`
}

// EventsConfig toggles broadcast event types
type EventsConfig struct {
	BroadcastSanitizations bool `yaml:"broadcast_sanitizations" mapstructure:"broadcast_sanitizations"`
	BroadcastSystem        bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	BroadcastConnections   bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// RateLimitConfig limits API requests per client IP
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
	// TrustedProxies lists the IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means the peer address is always the client.
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// Proxies parses TrustedProxies into prefixes; a bare IP becomes a host prefix
func (c RateLimitConfig) Proxies() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 45 * time.Second,
			MaxUploadBytes: 25 << 20,
		},
		Redaction: RedactionConfig{
			Method:     "blur",
			Padding:    5,
			BlurKernel: 25,
			PixelBlock: 10,
		},
		OCR: OCRConfig{
			Engine:   "tesseract",
			Binary:   "tesseract",
			Language: "eng",
			PSM:      3,
			Timeout:  30 * time.Second,
		},
		Detectors: []string{"all"},
		Cache: CacheConfig{
			Enabled:      false,
			RedisURL:     "redis://localhost:6379/0",
			KeyPrefix:    "pixel-sentinel",
			TTL:          24 * time.Hour,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Audit: AuditConfig{
			Enabled:         true,
			Driver:          "sqlite",
			DSN:             "pixel-sentinel.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Batch: BatchConfig{
			Workers:    4,
			OutputDir:  "sanitized",
			ReportName: "report.parquet",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: FileLogConfig{
				Enabled: false,
				Path:    "logs/pixel-sentinel.log",
			},
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			AllowedOrigins:  []string{"*"},
			Events: EventsConfig{
				BroadcastSanitizations: true,
				BroadcastSystem:        true,
				BroadcastConnections:   true,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
	}
}

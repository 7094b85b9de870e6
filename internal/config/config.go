package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/raaihank/pixel-sentinel/internal/pii"
	"github.com/raaihank/pixel-sentinel/internal/redact"
)

// EnvPrefix prefixes every environment override, e.g. PIXEL_SENTINEL_SERVER_PORT
const EnvPrefix = "PIXEL_SENTINEL"

// Loader reads configuration from defaults, an optional YAML file and the
// environment, in that order of precedence
type Loader struct {
	v       *viper.Viper
	mu      sync.RWMutex
	current *Config
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	l, err := NewLoader(configPath)
	if err != nil {
		return nil, err
	}
	return l.Config(), nil
}

// NewLoader creates a loader and performs the initial load
func NewLoader(configPath string) (*Loader, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Seeding viper with the defaults as YAML makes every key known, which
	// AutomaticEnv needs to apply overrides during Unmarshal.
	defaults, err := yaml.Marshal(GetDefaults())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pixel-sentinel/")
	v.AddConfigPath("$HOME/.pixel-sentinel/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.MergeInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	return &Loader{v: v, current: cfg}, nil
}

// Config returns the most recently loaded configuration
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// File returns the config file in use, or "" when running on defaults
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the configuration whenever the file changes. Invalid
// configurations are reported to onError and the previous one is kept.
func (l *Loader) Watch(callback func(*Config), onError func(error)) error {
	if l.File() == "" {
		return errors.New("no config file to watch")
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(l.v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()

		callback(cfg)
	})
	l.v.WatchConfig()

	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload size: %d", config.Server.MaxUploadBytes)
	}

	if _, err := redact.ParseMethod(config.Redaction.Method); err != nil {
		return fmt.Errorf("%w (must be blur or pixelate)", err)
	}

	if config.Redaction.Padding < 0 {
		return fmt.Errorf("invalid padding: %d", config.Redaction.Padding)
	}

	// even kernels are widened by the redactor, so only the sign matters
	if config.Redaction.BlurKernel < 0 {
		return fmt.Errorf("invalid blur kernel: %d", config.Redaction.BlurKernel)
	}

	if config.Redaction.PixelBlock < 1 {
		return fmt.Errorf("invalid pixel block: %d", config.Redaction.PixelBlock)
	}

	if config.OCR.Engine != "tesseract" && config.OCR.Engine != "none" {
		return fmt.Errorf("invalid ocr engine: %s (must be tesseract or none)", config.OCR.Engine)
	}

	if config.OCR.PSM < 0 || config.OCR.PSM > 13 {
		return fmt.Errorf("invalid tesseract page segmentation mode: %d", config.OCR.PSM)
	}

	if _, err := pii.DefaultRegistry().Subset(config.Detectors); err != nil {
		return err
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache enabled but redis_url is empty")
	}

	if config.Audit.Enabled {
		if config.Audit.Driver != "sqlite" && config.Audit.Driver != "postgres" {
			return fmt.Errorf("invalid audit driver: %s (must be sqlite or postgres)", config.Audit.Driver)
		}
		if config.Audit.DSN == "" {
			return fmt.Errorf("audit enabled but dsn is empty")
		}
	}

	if config.Batch.Workers < 1 {
		return fmt.Errorf("invalid batch workers: %d", config.Batch.Workers)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.WebSocket.Username != "" && config.WebSocket.Password == "" {
		return fmt.Errorf("websocket username set without a password")
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerMinute <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: %d/min burst %d", config.RateLimit.RequestsPerMinute, config.RateLimit.Burst)
	}
	if _, err := config.RateLimit.Proxies(); err != nil {
		return err
	}

	return nil
}

// WriteDefault writes the default configuration as YAML to path.
// An existing file is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := yaml.Marshal(GetDefaults())
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Check strictly parses a config file, rejecting unknown keys that viper
// would silently ignore, then validates the merged result
func Check(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	cfg := GetDefaults()
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w", path, err)
	}
	return validateConfig(cfg)
}

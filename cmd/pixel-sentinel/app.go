package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/pixel-sentinel/internal/audit"
	"github.com/raaihank/pixel-sentinel/internal/cache"
	"github.com/raaihank/pixel-sentinel/internal/config"
	"github.com/raaihank/pixel-sentinel/internal/events"
	"github.com/raaihank/pixel-sentinel/internal/logger"
	"github.com/raaihank/pixel-sentinel/internal/ocr"
	"github.com/raaihank/pixel-sentinel/internal/pii"
	"github.com/raaihank/pixel-sentinel/internal/sanitize"
	"github.com/raaihank/pixel-sentinel/internal/service"
)

// app holds every initialized service for one command
type app struct {
	config    *config.Config
	logger    *logger.Logger
	processor *service.Processor
	audit     *audit.Store
	cache     *cache.OutcomeCache
	hub       *events.Hub
}

type appOptions struct {
	events bool
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// newApp wires configuration, logging, detection, OCR and the optional
// cache, audit store and event hub into a processor
func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{config: cfg, logger: log}

	detector, err := pii.New(cfg.Detectors, log.WithComponent("pii").Logger)
	if err != nil {
		a.close()
		return nil, err
	}

	engine, err := ocr.New(cfg.OCR.Engine, ocr.TesseractConfig{
		Binary:   cfg.OCR.Binary,
		Language: cfg.OCR.Language,
		PSM:      cfg.OCR.PSM,
		Timeout:  cfg.OCR.Timeout,
	}, log.WithComponent("ocr").Logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if t, ok := engine.(*ocr.Tesseract); ok && !t.Available() {
		log.Warn("Tesseract not found, images will pass through unscanned",
			zap.String("binary", cfg.OCR.Binary))
	}

	sanitizer := sanitize.New(detector, engine, sanitize.Options{
		Padding:    cfg.Redaction.Padding,
		BlurKernel: cfg.Redaction.BlurKernel,
		PixelBlock: cfg.Redaction.PixelBlock,
	}, log.WithComponent("sanitize").Logger)

	var serviceOpts []service.Option

	if cfg.Cache.Enabled {
		c, err := cache.New(cache.Config{
			RedisURL:     cfg.Cache.RedisURL,
			KeyPrefix:    cfg.Cache.KeyPrefix,
			TTL:          cfg.Cache.TTL,
			PoolSize:     cfg.Cache.PoolSize,
			MinIdleConns: cfg.Cache.MinIdleConns,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			// the cache is an optimization, so run without it
			log.Warn("Outcome cache unavailable, continuing without it", zap.Error(err))
		} else {
			a.cache = c
			serviceOpts = append(serviceOpts, service.WithCache(c))
		}
	}

	if cfg.Audit.Enabled {
		store, err := openAudit(cfg, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.audit = store
		serviceOpts = append(serviceOpts, service.WithAudit(store))
	}

	if opts.events && cfg.WebSocket.Enabled {
		a.hub = events.NewHub(&events.HubConfig{
			BroadcastSanitizations: cfg.WebSocket.Events.BroadcastSanitizations,
			BroadcastSystem:        cfg.WebSocket.Events.BroadcastSystem,
			BroadcastConnections:   cfg.WebSocket.Events.BroadcastConnections,
			Username:               cfg.WebSocket.Username,
			Password:               cfg.WebSocket.Password,
			AllowedOrigins:         cfg.WebSocket.AllowedOrigins,
			MaxConnections:         cfg.WebSocket.MaxConnections,
			ReadBufferSize:         cfg.WebSocket.ReadBufferSize,
			WriteBufferSize:        cfg.WebSocket.WriteBufferSize,
			PingInterval:           cfg.WebSocket.PingInterval,
			PongTimeout:            cfg.WebSocket.PongTimeout,
			WriteTimeout:           cfg.WebSocket.WriteTimeout,
			MaxMessageSize:         cfg.WebSocket.MaxMessageSize,
		}, log.WithComponent("websocket").Logger)
		serviceOpts = append(serviceOpts, service.WithEvents(a.hub))
	}

	a.processor = service.New(sanitizer, log.WithComponent("service").Logger, serviceOpts...)
	return a, nil
}

func openAudit(cfg *config.Config, log *logger.Logger) (*audit.Store, error) {
	store, err := audit.Open(audit.Config{
		Driver:          cfg.Audit.Driver,
		DSN:             cfg.Audit.DSN,
		MaxOpenConns:    cfg.Audit.MaxOpenConns,
		MaxIdleConns:    cfg.Audit.MaxIdleConns,
		ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
	}, log.WithComponent("audit").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	return store, nil
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.audit != nil {
		a.audit.Close()
	}
	_ = a.logger.Sync()
}

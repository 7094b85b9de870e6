// Package server exposes the sanitizer over HTTP: image sanitization, text
// scanning, the audit trail and a live dashboard fed by the events hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pixel-sentinel/internal/audit"
	"github.com/raaihank/pixel-sentinel/internal/config"
	"github.com/raaihank/pixel-sentinel/internal/events"
	"github.com/raaihank/pixel-sentinel/internal/logger"
	"github.com/raaihank/pixel-sentinel/internal/redact"
	"github.com/raaihank/pixel-sentinel/internal/service"
	"github.com/raaihank/pixel-sentinel/internal/web"
)

const statusInterval = 10 * time.Second

// AuditReader is the read side of the audit store
type AuditReader interface {
	List(ctx context.Context, limit int) ([]*audit.Record, error)
	Stats(ctx context.Context) (*audit.Stats, error)
}

// Deps are the collaborators the server is built from. Audit and Hub are
// optional.
type Deps struct {
	Processor *service.Processor
	Audit     AuditReader
	Hub       *events.Hub
	Version   string
}

// Server represents the HTTP API server
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	processor *service.Processor
	audit     AuditReader
	hub       *events.Hub
	version   string
	router    *mux.Router
	server    *http.Server
	started   time.Time

	// swapped by Reload
	method  atomic.Value // redact.Method
	limiter atomic.Pointer[RateLimiter]
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Processor == nil {
		return nil, errors.New("server requires a processor")
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		processor: deps.Processor,
		audit:     deps.Audit,
		hub:       deps.Hub,
		version:   deps.Version,
		router:    mux.NewRouter(),
		started:   time.Now(),
	}
	if s.version == "" {
		s.version = "dev"
	}
	s.applyPolicy(cfg)

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)

	// the upgrader needs the raw writer, so no middleware here
	if s.hub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.hub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/sanitize", s.handleSanitize).Methods(http.MethodPost)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the hub and background loops, then serves until Stop is called
// or ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting pixel-sentinel server",
		zap.String("addr", s.server.Addr),
		zap.String("default_method", string(s.defaultMethod())),
		zap.String("ocr_engine", s.processor.Sanitizer().Engine().Name()),
		zap.Bool("websocket", s.hub != nil && s.config.WebSocket.Enabled),
		zap.Bool("rate_limit", s.limiter.Load() != nil),
	)

	if s.hub != nil {
		go s.hub.Run(ctx)
		go s.statusLoop(ctx)
	}
	go s.cleanupLoop(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping pixel-sentinel server")
	return s.server.Shutdown(ctx)
}

// Reload applies the parts of a new configuration that can change while
// serving: the default redaction method and the rate limit. Listener,
// sanitizer and storage settings need a restart.
func (s *Server) Reload(cfg *config.Config) {
	s.applyPolicy(cfg)
	s.logger.Info("Configuration reloaded",
		zap.String("default_method", string(s.defaultMethod())),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Int("requests_per_minute", cfg.RateLimit.RequestsPerMinute),
	)
}

func (s *Server) applyPolicy(cfg *config.Config) {
	method, err := redact.ParseMethod(cfg.Redaction.Method)
	if err != nil {
		method = redact.MethodBlur
	}
	s.method.Store(method)

	if !cfg.RateLimit.Enabled {
		s.limiter.Store(nil)
		return
	}
	proxies, err := cfg.RateLimit.Proxies()
	if err != nil {
		// validated on load, so only hand-built configs get here
		s.logger.Warn("Ignoring invalid trusted proxies", zap.Error(err))
		proxies = nil
	}
	s.limiter.Store(NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, proxies...))
}

func (s *Server) defaultMethod() redact.Method {
	return s.method.Load().(redact.Method)
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if limiter := s.limiter.Load(); limiter != nil {
				limiter.Cleanup(now.Add(-time.Hour))
			}
		}
	}
}

func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.BroadcastEvent(events.Event{
				Type: events.EventTypeSystemStatus,
				Data: s.systemStatus(),
			})
		}
	}
}

func (s *Server) systemStatus() events.SystemStatusEvent {
	counters := s.processor.Counters()
	status := events.SystemStatusEvent{
		Status:          "healthy",
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		TotalImages:     counters.Images,
		TotalRedacted:   counters.Redacted,
		TotalUnscanned:  counters.Unscanned,
		ActiveDetectors: s.processor.Sanitizer().Detector().Registry().Len(),
		OCREngine:       s.processor.Sanitizer().Engine().Name(),
	}
	if s.hub != nil {
		status.ConnectedClients = s.hub.ClientCount()
	}
	return status
}

package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/raaihank/pixel-sentinel/internal/imageio"
	"github.com/raaihank/pixel-sentinel/internal/pii"
	"github.com/raaihank/pixel-sentinel/internal/redact"
	"github.com/raaihank/pixel-sentinel/internal/service"
)

const (
	maxScanBytes     = 1 << 20
	defaultAuditList = 50
	maxAuditList     = 1000
)

// ScanRequest is the body of POST /v1/scan
type ScanRequest struct {
	Text string `json:"text"`
	// Mask asks for the text back with every finding replaced
	Mask bool `json:"mask,omitempty"`
}

// ScanResponse lists what the text detector found
type ScanResponse struct {
	Categories []string      `json:"categories"`
	Findings   []pii.Finding `json:"findings"`
	Count      int           `json:"count"`
	Masked     string        `json:"masked,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	sanitizer := s.processor.Sanitizer()
	opts := sanitizer.Options()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           "pixel-sentinel",
		"version":        s.version,
		"default_method": s.defaultMethod(),
		"padding":        opts.Padding,
		"blur_kernel":    opts.BlurKernel,
		"pixel_block":    opts.PixelBlock,
		"ocr_engine":     sanitizer.Engine().Name(),
		"detectors":      sanitizer.Detector().Registry().Names(),
		"cache_enabled":  s.config.Cache.Enabled,
		"audit_enabled":  s.audit != nil,
		"max_upload":     s.config.Server.MaxUploadBytes,
	})
}

// handleSanitize accepts a raw image body or a multipart "image" field and
// answers with the sanitized PNG
func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	method := s.defaultMethod()
	if name := r.URL.Query().Get("method"); name != "" {
		var err error
		if method, err = redact.ParseMethod(name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	data, err := s.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty image")
		return
	}

	ctx := r.Context()
	if s.config.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Server.RequestTimeout)
		defer cancel()
	}

	res, err := s.processor.Process(ctx, service.Request{
		Data:      data,
		Method:    method,
		Source:    "http",
		RequestID: requestID,
	})
	switch {
	case err == nil:
	case errors.Is(err, imageio.ErrImageDecode):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "sanitization timed out")
		return
	case errors.Is(err, context.Canceled):
		log.Info("Client went away during sanitization")
		return
	default:
		log.Error("Sanitization failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sanitization failed")
		return
	}

	log.Info("Image sanitized",
		zap.String("method", string(res.Method)),
		zap.Bool("scanned", res.Scanned),
		zap.String("reason", res.Reason),
		zap.Strings("categories", res.Categories),
		zap.Int("regions", len(res.Regions)),
		zap.Bool("cache_hit", res.CacheHit),
		zap.Duration("duration", res.Duration),
	)

	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Content-Length", strconv.Itoa(len(res.PNG)))
	h.Set("X-Sanitize-Categories", strings.Join(res.Categories, ","))
	h.Set("X-Sanitize-Scanned", strconv.FormatBool(res.Scanned))
	h.Set("X-Sanitize-Reason", res.Reason)
	h.Set("X-Sanitize-Regions", strconv.Itoa(len(res.Regions)))
	h.Set("X-Sanitize-Method", string(res.Method))
	h.Set("X-Sanitize-Cache", strconv.FormatBool(res.CacheHit))
	if res.AuditID != "" {
		h.Set("X-Audit-ID", res.AuditID)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.PNG); err != nil {
		log.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := s.config.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, errors.New(`multipart upload requires an "image" field`)
	}
	defer file.Close()
	return io.ReadAll(file)
}

// handleScan runs the text detector over a JSON body
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxScanBytes)

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	findings := s.processor.Scan(req.Text)
	if findings == nil {
		findings = pii.Findings{}
	}
	resp := ScanResponse{
		Categories: findings.Categories(),
		Findings:   findings,
		Count:      findings.Count(),
	}
	if req.Mask {
		resp.Masked = s.processor.Mask(req.Text)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAudit lists the newest audit records
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit trail disabled")
		return
	}

	limit := defaultAuditList
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxAuditList)
	}

	records, err := s.audit.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list audit records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audit records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// handleStats reports processing counters plus audit and hub totals
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"counters": s.processor.Counters(),
	}
	if s.audit != nil {
		stats, err := s.audit.Stats(r.Context())
		if err != nil {
			s.logger.Warn("Failed to read audit stats", zap.Error(err))
		} else {
			body["audit"] = stats
		}
	}
	if s.hub != nil {
		body["websocket"] = s.hub.GetStats()
	}
	if limiter := s.limiter.Load(); limiter != nil {
		body["rate_limited_clients"] = limiter.Len()
	}
	writeJSON(w, http.StatusOK, body)
}

// Package service runs one uploaded image through the sanitizer together with
// the surrounding plumbing: outcome cache, PNG export, audit trail and live
// events. The HTTP server, the CLI and the batch runner all go through it.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pixel-sentinel/internal/audit"
	"github.com/raaihank/pixel-sentinel/internal/cache"
	"github.com/raaihank/pixel-sentinel/internal/events"
	"github.com/raaihank/pixel-sentinel/internal/geom"
	"github.com/raaihank/pixel-sentinel/internal/imageio"
	"github.com/raaihank/pixel-sentinel/internal/pii"
	"github.com/raaihank/pixel-sentinel/internal/redact"
	"github.com/raaihank/pixel-sentinel/internal/sanitize"
)

// OutcomeCache is the subset of the redis cache the processor uses
type OutcomeCache interface {
	Key(image []byte, policy string) string
	Get(ctx context.Context, key string) (*cache.Entry, bool)
	Put(ctx context.Context, key string, entry *cache.Entry) error
}

// AuditSink records audited sanitizations
type AuditSink interface {
	Record(ctx context.Context, rec *audit.Record) error
}

// Publisher broadcasts sanitization events
type Publisher interface {
	PublishSanitization(ev events.SanitizationEvent)
}

// Request is one image to sanitize
type Request struct {
	Data      []byte
	Method    redact.Method
	Source    string
	RequestID string
}

// Result is the exported outcome of a Request
type Result struct {
	PNG         []byte
	Format      string
	ImageSHA256 string
	Method      redact.Method
	Categories  []string
	Scanned     bool
	Reason      string
	Findings    int
	Regions     []geom.Box
	CacheHit    bool
	AuditID     string
	Duration    time.Duration
}

// Counters are process-lifetime totals
type Counters struct {
	Images    int64 `json:"images"`
	Redacted  int64 `json:"redacted"`
	Unscanned int64 `json:"unscanned"`
	CacheHits int64 `json:"cache_hits"`
	Failures  int64 `json:"failures"`
}

// Processor wires the sanitizer to its optional collaborators. Nil
// collaborators are skipped.
type Processor struct {
	sanitizer *sanitize.Sanitizer
	cache     OutcomeCache
	audit     AuditSink
	events    Publisher
	logger    *zap.Logger

	images    atomic.Int64
	redacted  atomic.Int64
	unscanned atomic.Int64
	cacheHits atomic.Int64
	failures  atomic.Int64
}

// Option configures a Processor
type Option func(*Processor)

// WithCache enables the outcome cache
func WithCache(c OutcomeCache) Option {
	return func(p *Processor) { p.cache = c }
}

// WithAudit enables the audit trail
func WithAudit(a AuditSink) Option {
	return func(p *Processor) { p.audit = a }
}

// WithEvents enables live event publishing
func WithEvents(e Publisher) Option {
	return func(p *Processor) { p.events = e }
}

// New creates a new processor
func New(sanitizer *sanitize.Sanitizer, logger *zap.Logger, opts ...Option) *Processor {
	p := &Processor{sanitizer: sanitizer, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sanitizer returns the underlying sanitizer
func (p *Processor) Sanitizer() *sanitize.Sanitizer {
	return p.sanitizer
}

// Counters returns a snapshot of the processing totals
func (p *Processor) Counters() Counters {
	return Counters{
		Images:    p.images.Load(),
		Redacted:  p.redacted.Load(),
		Unscanned: p.unscanned.Load(),
		CacheHits: p.cacheHits.Load(),
		Failures:  p.failures.Load(),
	}
}

// Scan runs the text detector over raw text
func (p *Processor) Scan(text string) pii.Findings {
	return p.sanitizer.Detector().Detect(text)
}

// Mask replaces every detected value in text with a category placeholder
func (p *Processor) Mask(text string) string {
	return p.sanitizer.Detector().Mask(text)
}

// Policy describes everything besides the pixels that changes an outcome
func (p *Processor) Policy(method redact.Method) string {
	opts := p.sanitizer.Options()
	return strings.Join([]string{
		string(method),
		strconv.Itoa(opts.Padding),
		strconv.Itoa(opts.Strength(method)),
		p.sanitizer.Engine().Name(),
		strings.Join(p.sanitizer.Detector().Registry().Names(), ","),
	}, "|")
}

// Process sanitizes one image. The only errors are undecodable input, an
// unknown method, a cancelled context and PNG encoding failures.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	p.images.Add(1)

	res, err := p.process(ctx, req)
	if err != nil {
		p.failures.Add(1)
		return nil, err
	}
	res.Duration = time.Since(start)

	if res.Scanned && len(res.Regions) > 0 {
		p.redacted.Add(1)
	}
	if !res.Scanned {
		p.unscanned.Add(1)
	}

	p.record(ctx, req, res)
	return res, nil
}

func (p *Processor) process(ctx context.Context, req Request) (*Result, error) {
	if _, err := redact.ParseMethod(string(req.Method)); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(req.Data)
	digest := hex.EncodeToString(sum[:])

	var key string
	if p.cache != nil {
		key = p.cache.Key(req.Data, p.Policy(req.Method))
		if entry, ok := p.cache.Get(ctx, key); ok {
			res, err := p.fromCache(req, entry)
			if err == nil {
				res.ImageSHA256 = digest
				p.cacheHits.Add(1)
				return res, nil
			}
			p.logger.Warn("Discarding unusable cache entry", zap.Error(err))
		}
	}

	img, format, err := imageio.DecodeBytes(req.Data)
	if err != nil {
		return nil, err
	}

	out, err := p.sanitizer.AutoSanitize(ctx, img, req.Method)
	if err != nil {
		return nil, err
	}

	png, err := imageio.PNGBytes(out.Image)
	if err != nil {
		return nil, err
	}

	res := &Result{
		PNG:         png,
		Format:      format,
		ImageSHA256: digest,
		Method:      req.Method,
		Categories:  out.Categories,
		Scanned:     out.Scanned,
		Reason:      out.Reason,
		Findings:    out.Findings,
		Regions:     out.Regions,
	}

	// unscanned outcomes depend on OCR health, not the image, so they are
	// never cached
	if p.cache != nil && out.Scanned {
		entry := &cache.Entry{
			Categories: out.Categories,
			Scanned:    out.Scanned,
			Reason:     out.Reason,
			Findings:   out.Findings,
			Regions:    out.Regions,
			Method:     string(req.Method),
		}
		if out.Redacted() {
			entry.Image = png
		}
		if err := p.cache.Put(ctx, key, entry); err != nil {
			p.logger.Warn("Failed to cache outcome", zap.Error(err))
		}
	}

	return res, nil
}

// fromCache rebuilds a result from a cache entry. Pass-through entries carry
// no image, so the original is re-encoded.
func (p *Processor) fromCache(req Request, entry *cache.Entry) (*Result, error) {
	res := &Result{
		PNG:        entry.Image,
		Method:     req.Method,
		Categories: entry.Categories,
		Scanned:    entry.Scanned,
		Reason:     entry.Reason,
		Findings:   entry.Findings,
		Regions:    entry.Regions,
		CacheHit:   true,
		Format:     "png",
	}

	if len(res.PNG) == 0 {
		img, format, err := imageio.DecodeBytes(req.Data)
		if err != nil {
			return nil, err
		}
		if res.PNG, err = imageio.PNGBytes(img); err != nil {
			return nil, err
		}
		res.Format = format
	}
	return res, nil
}

func (p *Processor) record(ctx context.Context, req Request, res *Result) {
	if p.audit != nil {
		rec := &audit.Record{
			ImageSHA256: res.ImageSHA256,
			Source:      req.Source,
			Method:      string(res.Method),
			Scanned:     res.Scanned,
			Reason:      res.Reason,
			Categories:  res.Categories,
			Findings:    res.Findings,
			Regions:     len(res.Regions),
		}
		if err := p.audit.Record(ctx, rec); err != nil {
			p.logger.Error("Failed to write audit record", zap.Error(err))
		} else {
			res.AuditID = rec.ID
		}
	}

	if p.events != nil {
		p.events.PublishSanitization(events.SanitizationEvent{
			RequestID:    req.RequestID,
			Source:       req.Source,
			ImageSHA256:  res.ImageSHA256,
			Method:       string(res.Method),
			Scanned:      res.Scanned,
			Reason:       res.Reason,
			Categories:   res.Categories,
			Findings:     res.Findings,
			Regions:      len(res.Regions),
			CacheHit:     res.CacheHit,
			ProcessingMS: float64(res.Duration.Microseconds()) / 1000,
		})
	}
}

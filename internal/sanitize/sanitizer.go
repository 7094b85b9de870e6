// Package sanitize runs the full detect-and-redact pipeline over one image.
//
// A run moves through extract, detect, localize and redact before it is done.
// OCR trouble and empty results short-circuit to done with the input image
// returned untouched.
package sanitize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/raaihank/pixel-sentinel/internal/geom"
	"github.com/raaihank/pixel-sentinel/internal/imageio"
	"github.com/raaihank/pixel-sentinel/internal/locate"
	"github.com/raaihank/pixel-sentinel/internal/ocr"
	"github.com/raaihank/pixel-sentinel/internal/pii"
	"github.com/raaihank/pixel-sentinel/internal/redact"
)

// Sanitizer wires OCR, detection, localization and redaction together.
// It holds no per-call state and is safe for concurrent use.
type Sanitizer struct {
	detector *pii.Detector
	engine   ocr.Engine
	opts     Options
	logger   *zap.Logger
}

// New creates a new sanitizer
func New(detector *pii.Detector, engine ocr.Engine, opts Options, logger *zap.Logger) *Sanitizer {
	return &Sanitizer{
		detector: detector,
		engine:   engine,
		opts:     opts,
		logger:   logger,
	}
}

// Options returns the redaction policy in use
func (s *Sanitizer) Options() Options {
	return s.opts
}

// Detector returns the text detector in use
func (s *Sanitizer) Detector() *pii.Detector {
	return s.detector
}

// Engine returns the OCR engine in use
func (s *Sanitizer) Engine() ocr.Engine {
	return s.engine
}

// run carries the working state of one AutoSanitize call
type run struct {
	stage    Stage
	src      image.Image
	method   redact.Method
	text     string
	findings pii.Findings
	boxes    []geom.Box
	out      *Outcome
}

// AutoSanitize finds sensitive text in img and redacts it with method.
// img is never modified. The only errors are a nil image, an unknown method
// and a cancelled context; OCR failures are reported through the outcome.
func (s *Sanitizer) AutoSanitize(ctx context.Context, img image.Image, method redact.Method) (*Outcome, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if _, err := redact.ParseMethod(string(method)); err != nil {
		return nil, err
	}

	start := time.Now()
	r := &run{
		stage:  StageExtract,
		src:    img,
		method: method,
		out:    &Outcome{Image: img, Method: method},
	}

	for r.stage != StageDone {
		next, err := s.step(ctx, r)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("sanitize stage complete",
			zap.Stringer("stage", r.stage),
			zap.Stringer("next", next),
		)
		r.stage = next
	}

	s.logger.Info("Image sanitized",
		zap.Bool("scanned", r.out.Scanned),
		zap.String("reason", r.out.Reason),
		zap.Strings("categories", r.out.Categories),
		zap.Int("regions", len(r.out.Regions)),
		zap.String("method", string(method)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return r.out, nil
}

func (s *Sanitizer) step(ctx context.Context, r *run) (Stage, error) {
	switch r.stage {
	case StageExtract:
		return s.extract(ctx, r)
	case StageDetect:
		return s.detect(r), nil
	case StageLocalize:
		return s.localize(ctx, r)
	case StageRedact:
		return s.redact(r)
	default:
		return StageDone, fmt.Errorf("invalid stage %d", r.stage)
	}
}

func (s *Sanitizer) extract(ctx context.Context, r *run) (Stage, error) {
	text, err := s.engine.Transcribe(ctx, r.src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return StageDone, ctxErr
		}
		r.out.Reason = ocrReason(err)
		s.logger.Warn("OCR transcription unavailable, image passed through unscanned",
			zap.String("engine", s.engine.Name()),
			zap.String("reason", r.out.Reason),
			zap.Error(err),
		)
		return StageDone, nil
	}

	if strings.TrimSpace(text) == "" {
		r.out.Reason = ReasonEmptyTranscript
		return StageDone, nil
	}

	r.text = text
	return StageDetect, nil
}

func (s *Sanitizer) detect(r *run) Stage {
	r.out.Scanned = true
	r.findings = s.detector.Detect(r.text)
	if r.findings.Empty() {
		r.out.Reason = ReasonNoFindings
		return StageDone
	}

	r.out.Categories = r.findings.Categories()
	r.out.Findings = r.findings.Count()
	return StageLocalize
}

func (s *Sanitizer) localize(ctx context.Context, r *run) (Stage, error) {
	tokens, err := s.engine.Tokenize(ctx, r.src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return StageDone, ctxErr
		}
		// Detection already happened, so the categories stand. Nothing can be
		// placed on the image without token geometry.
		r.out.Reason = ReasonTokenizeFailed
		s.logger.Warn("OCR tokenization failed, findings not redacted",
			zap.String("engine", s.engine.Name()),
			zap.Strings("categories", r.out.Categories),
			zap.Error(err),
		)
		return StageDone, nil
	}

	r.boxes = locate.Locate(tokens, r.findings.Terms())
	if len(r.boxes) == 0 {
		r.out.Reason = ReasonNotLocalized
		s.logger.Warn("Findings could not be localized",
			zap.Strings("categories", r.out.Categories),
			zap.Int("tokens", len(tokens)),
		)
		return StageDone, nil
	}
	return StageRedact, nil
}

func (s *Sanitizer) redact(r *run) (Stage, error) {
	// Only the redacted rectangles pass through the 8-bit scratch buffer;
	// everything else keeps the source's exact pixel values.
	working := imageio.CloneNative(r.src)
	bounds := working.Bounds()
	strength := s.opts.Strength(r.method)

	for _, box := range r.boxes {
		region := box.Pad(s.opts.Padding).Clamp(bounds)
		if region.Empty() {
			continue
		}
		rect := region.Rect()
		scratch := imageio.Region(working, rect)
		applied, err := redact.Apply(scratch, region, r.method, strength)
		if err != nil {
			return StageDone, err
		}
		draw.Draw(working, rect, scratch, rect.Min, draw.Src)
		r.out.Regions = append(r.out.Regions, applied)
	}

	if len(r.out.Regions) == 0 {
		r.out.Reason = ReasonNotLocalized
		return StageDone, nil
	}

	r.out.Image = working
	r.out.Reason = ReasonRedacted
	return StageDone, nil
}

func ocrReason(err error) string {
	if errors.Is(err, ocr.ErrUnavailable) {
		return ReasonOCRUnavailable
	}
	return ReasonOCRFailed
}

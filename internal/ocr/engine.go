// Package ocr is the boundary between the sanitizer and an OCR engine.
//
// Engines turn an image into a flat transcription and a stream of word tokens
// with pixel geometry. Both operations may fail softly with ErrUnavailable
// (engine not installed) or ErrFailed (recognition error).
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/raaihank/pixel-sentinel/internal/geom"
)

var (
	// ErrUnavailable means the engine is not installed or not reachable
	ErrUnavailable = errors.New("ocr engine unavailable")
	// ErrFailed means the engine ran but recognition failed
	ErrFailed = errors.New("ocr recognition failed")
)

// Token is one OCR word with its bounding box
type Token struct {
	Text string   `json:"text"`
	Box  geom.Box `json:"box"`
}

// Engine is implemented by every OCR backend.
// Tokens come back in reading order: left to right, top to bottom.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, img image.Image) (string, error)
	Tokenize(ctx context.Context, img image.Image) ([]Token, error)
}

// Soft reports whether err is one of the soft OCR failures
func Soft(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrFailed)
}

// New returns the engine registered under name. "none" yields an engine that
// always reports ErrUnavailable, so every image passes through unscanned.
func New(name string, cfg TesseractConfig, logger *zap.Logger) (Engine, error) {
	switch name {
	case "", "tesseract":
		return NewTesseract(cfg, logger), nil
	case "none":
		return Disabled(), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine: %s", name)
	}
}

package ocr

import (
	"context"
	"image"
)

// Static is an Engine that returns canned results. It backs the "none"
// engine setting and tests.
type Static struct {
	Text   string
	Tokens []Token
	// Err is returned by both operations when set
	Err error
	// TokenizeErr overrides Err for Tokenize only
	TokenizeErr error
}

// Name returns the engine name
func (s *Static) Name() string {
	return "static"
}

// Transcribe returns the canned text
func (s *Static) Transcribe(ctx context.Context, img image.Image) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}

// Tokenize returns a copy of the canned tokens
func (s *Static) Tokenize(ctx context.Context, img image.Image) ([]Token, error) {
	if s.TokenizeErr != nil {
		return nil, s.TokenizeErr
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]Token, len(s.Tokens))
	copy(out, s.Tokens)
	return out, nil
}

// Disabled returns an engine that always reports ErrUnavailable
func Disabled() *Static {
	return &Static{Err: ErrUnavailable}
}

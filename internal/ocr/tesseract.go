package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pixel-sentinel/internal/geom"
)

// TesseractConfig configures the tesseract CLI engine
type TesseractConfig struct {
	Binary   string
	Language string
	PSM      int
	Timeout  time.Duration
}

// Tesseract runs the tesseract command line tool once per call.
// The image is piped to stdin as grayscale PNG.
type Tesseract struct {
	config TesseractConfig
	logger *zap.Logger
}

// tsv word rows are level 5
const tsvWordLevel = 5

// NewTesseract creates a new tesseract engine
func NewTesseract(cfg TesseractConfig, logger *zap.Logger) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Tesseract{config: cfg, logger: logger}
}

// Name returns the engine name
func (t *Tesseract) Name() string {
	return "tesseract"
}

// Available reports whether the binary can be found on PATH
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.config.Binary)
	return err == nil
}

// Transcribe returns the plain text tesseract reads from img
func (t *Tesseract) Transcribe(ctx context.Context, img image.Image) (string, error) {
	out, err := t.run(ctx, img)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Tokenize returns the word tokens tesseract reads from img, in reading order.
// Boxes are expressed in the coordinate space of img.
func (t *Tesseract) Tokenize(ctx context.Context, img image.Image) ([]Token, error) {
	out, err := t.run(ctx, img, "tsv")
	if err != nil {
		return nil, err
	}
	tokens, err := ParseTSV(bytes.NewReader(out), img.Bounds().Min)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	return tokens, nil
}

func (t *Tesseract) run(ctx context.Context, img image.Image, configs ...string) ([]byte, error) {
	bin, err := exec.LookPath(t.config.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, t.config.Binary)
	}

	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	var input bytes.Buffer
	if err := png.Encode(&input, Grayscale(img)); err != nil {
		return nil, fmt.Errorf("%w: encode input: %v", ErrFailed, err)
	}

	args := []string{"stdin", "stdout", "-l", t.config.Language}
	if t.config.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.config.PSM))
	}
	args = append(args, configs...)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = &input
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		t.logger.Warn("tesseract failed",
			zap.Error(err),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
		)
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}

	t.logger.Debug("tesseract finished",
		zap.Strings("args", args),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("bytes", stdout.Len()),
	)

	return stdout.Bytes(), nil
}

// ParseTSV reads tesseract TSV output and returns the non-empty word rows.
// offset is added to every box.
func ParseTSV(r io.Reader, offset image.Point) ([]Token, error) {
	var tokens []Token

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	header := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if header {
			header = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, "\t", 12)
		if len(fields) < 12 {
			continue
		}

		level, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("bad level %q", fields[0])
		}
		text := strings.TrimSpace(fields[11])
		if level != tsvWordLevel || text == "" {
			continue
		}

		var dims [4]int
		for i := range dims {
			dims[i], err = strconv.Atoi(fields[6+i])
			if err != nil {
				return nil, fmt.Errorf("bad box field %q", fields[6+i])
			}
		}

		tokens = append(tokens, Token{
			Text: text,
			Box: geom.Box{
				X:      dims[0] + offset.X,
				Y:      dims[1] + offset.Y,
				Width:  dims[2],
				Height: dims[3],
			},
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

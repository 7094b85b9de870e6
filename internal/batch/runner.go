// Package batch sanitizes every image listed in a manifest with a bounded
// worker pool and writes a parquet report of the outcomes.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/pixel-sentinel/internal/redact"
	"github.com/raaihank/pixel-sentinel/internal/service"
)

// Processor is what the runner feeds images to
type Processor interface {
	Process(ctx context.Context, req service.Request) (*service.Result, error)
}

// Runner processes manifests
type Runner struct {
	processor Processor
	config    Config
	logger    *zap.Logger
}

// NewRunner creates a new batch runner
func NewRunner(processor Processor, config Config, logger *zap.Logger) *Runner {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.OutputDir == "" {
		config.OutputDir = "sanitized"
	}
	if config.DefaultMethod == "" {
		config.DefaultMethod = redact.MethodBlur
	}
	return &Runner{processor: processor, config: config, logger: logger}
}

// Run reads the manifest at path and processes every item
func (r *Runner) Run(ctx context.Context, path string) (*Result, error) {
	format := DetectFileFormat(path)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		format = FormatDir
	}
	r.logger.Info("Reading manifest", zap.String("manifest", path), zap.String("format", string(format)))

	items, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	return r.RunItems(ctx, items)
}

// RunItems processes items concurrently. A failing item is recorded in its
// report row and does not stop the run; only cancellation does.
func (r *Runner) RunItems(ctx context.Context, items []Item) (*Result, error) {
	start := time.Now()
	r.logger.Info("Starting batch run",
		zap.Int("items", len(items)),
		zap.Int("workers", r.config.Workers),
		zap.String("output_dir", r.config.OutputDir))

	if err := os.MkdirAll(r.config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	rows := make([]ReportRow, len(items))
	var done, redacted, unscanned, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)

	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := r.processItem(gctx, i, item)
			rows[i] = row

			switch {
			case row.Error != "":
				failed.Add(1)
			case !row.Scanned:
				unscanned.Add(1)
			case row.Regions > 0:
				redacted.Add(1)
			}
			if n := done.Add(1); n%100 == 0 {
				r.reportProgress(n, int64(len(items)), start)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Total:     int64(len(items)),
		Redacted:  redacted.Load(),
		Unscanned: unscanned.Load(),
		Failed:    failed.Load(),
		Duration:  time.Since(start),
		Rows:      rows,
	}

	if r.config.ReportName != "" {
		result.Report = filepath.Join(r.config.OutputDir, r.config.ReportName)
		if err := WriteReport(result.Report, rows); err != nil {
			return result, err
		}
	}

	r.logger.Info("Batch run completed",
		zap.Int64("total", result.Total),
		zap.Int64("redacted", result.Redacted),
		zap.Int64("unscanned", result.Unscanned),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (r *Runner) processItem(ctx context.Context, index int, item Item) ReportRow {
	row := ReportRow{Path: item.Path}

	method := r.config.DefaultMethod
	if item.Method != "" {
		m, err := redact.ParseMethod(item.Method)
		if err != nil {
			row.Error = err.Error()
			return row
		}
		method = m
	}
	row.Method = string(method)

	data, err := os.ReadFile(item.Path)
	if err != nil {
		row.Error = err.Error()
		r.logger.Warn("Failed to read image", zap.String("path", item.Path), zap.Error(err))
		return row
	}

	res, err := r.processor.Process(ctx, service.Request{
		Data:      data,
		Method:    method,
		Source:    "batch",
		RequestID: fmt.Sprintf("batch-%d", index),
	})
	if err != nil {
		row.Error = err.Error()
		r.logger.Warn("Failed to sanitize image", zap.String("path", item.Path), zap.Error(err))
		return row
	}

	row.ImageSHA256 = res.ImageSHA256
	row.Scanned = res.Scanned
	row.Reason = res.Reason
	row.Categories = strings.Join(res.Categories, ",")
	row.Findings = int64(res.Findings)
	row.Regions = int64(len(res.Regions))
	row.CacheHit = res.CacheHit
	row.ProcessingMS = res.Duration.Milliseconds()

	row.Output = item.Output
	if row.Output == "" {
		row.Output = r.outputPath(index, item.Path)
	}
	if err := os.MkdirAll(filepath.Dir(row.Output), 0o755); err != nil {
		row.Error = err.Error()
		return row
	}
	if err := os.WriteFile(row.Output, res.PNG, 0o644); err != nil {
		row.Error = err.Error()
		r.logger.Warn("Failed to write output", zap.String("output", row.Output), zap.Error(err))
	}
	return row
}

// outputPath prefixes the index so inputs sharing a base name from different
// directories never overwrite each other
func (r *Runner) outputPath(index int, input string) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(r.config.OutputDir, fmt.Sprintf("%05d_%s.png", index, name))
}

func (r *Runner) reportProgress(done, total int64, start time.Time) {
	elapsed := time.Since(start)
	r.logger.Info("Batch progress",
		zap.Int64("processed", done),
		zap.Int64("total", total),
		zap.Float64("rate_per_sec", float64(done)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed))
}

// WriteReport writes rows as a parquet file at path
func WriteReport(path string, rows []ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[ReportRow](file)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize report: %w", err)
	}
	return nil
}

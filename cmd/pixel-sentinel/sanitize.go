package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/raaihank/pixel-sentinel/internal/redact"
	"github.com/raaihank/pixel-sentinel/internal/service"
)

// sanitizeSummary is what the sanitize command reports
type sanitizeSummary struct {
	Input       string   `json:"input"`
	Output      string   `json:"output"`
	Method      string   `json:"method"`
	Scanned     bool     `json:"scanned"`
	Reason      string   `json:"reason"`
	Categories  []string `json:"categories"`
	Findings    int      `json:"findings"`
	Regions     int      `json:"regions"`
	CacheHit    bool     `json:"cache_hit"`
	ImageSHA256 string   `json:"image_sha256"`
	AuditID     string   `json:"audit_id,omitempty"`
}

func newSanitizeCmd() *cobra.Command {
	var (
		output     string
		methodName string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "sanitize <image>",
		Short: "Redact sensitive text in one image",
		Long: `Redact sensitive text in one image and write the result as PNG.

Use "-" as the input to read from stdin and as the output to write to stdout.
Without --output the result is written next to the input as <name>.sanitized.png.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if methodName == "" {
				methodName = cfg.Redaction.Method
			}
			method, err := redact.ParseMethod(methodName)
			if err != nil {
				return err
			}

			input := args[0]
			data, err := readInput(cmd, input)
			if err != nil {
				return err
			}

			a, err := newApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.processor.Process(context.Background(), service.Request{
				Data:   data,
				Method: method,
				Source: "cli",
			})
			if err != nil {
				return err
			}

			if output == "" {
				output = defaultOutput(input)
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(res.PNG)
				return err
			}
			if err := os.WriteFile(output, res.PNG, 0o644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}

			summary := sanitizeSummary{
				Input:       input,
				Output:      output,
				Method:      string(res.Method),
				Scanned:     res.Scanned,
				Reason:      res.Reason,
				Categories:  res.Categories,
				Findings:    res.Findings,
				Regions:     len(res.Regions),
				CacheHit:    res.CacheHit,
				ImageSHA256: res.ImageSHA256,
				AuditID:     res.AuditID,
			}
			return printSummary(cmd.OutOrStdout(), summary, asJSON)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", `output PNG path ("-" for stdout)`)
	cmd.Flags().StringVarP(&methodName, "method", "m", "", "redaction method: blur or pixelate (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func readInput(cmd *cobra.Command, input string) ([]byte, error) {
	if input == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

func defaultOutput(input string) string {
	if input == "-" {
		return "-"
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + ".sanitized.png"
}

func printSummary(w io.Writer, s sanitizeSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	status := "unscanned"
	if s.Scanned {
		status = "scanned"
	}
	categories := "none"
	if len(s.Categories) > 0 {
		categories = strings.Join(s.Categories, ", ")
	}
	fmt.Fprintf(w, "%s -> %s\n", s.Input, s.Output)
	fmt.Fprintf(w, "  status:     %s (%s)\n", status, s.Reason)
	fmt.Fprintf(w, "  categories: %s\n", categories)
	fmt.Fprintf(w, "  regions:    %d (%s)\n", s.Regions, s.Method)
	if s.CacheHit {
		fmt.Fprintf(w, "  cache:      hit\n")
	}
	return nil
}

func newScanCmd() *cobra.Command {
	var mask bool

	cmd := &cobra.Command{
		Use:   "scan [text...]",
		Short: "Scan text for sensitive data",
		Long:  "Run the text detector over the arguments, or over stdin when no arguments are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}

			// scanning needs neither OCR nor storage
			cfg.OCR.Engine = "none"
			cfg.Cache.Enabled = false
			cfg.Audit.Enabled = false

			a, err := newApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			if mask {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), a.processor.Mask(text))
				return err
			}

			findings := a.processor.Scan(text)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"categories": findings.Categories(),
				"findings":   findings,
				"count":      findings.Count(),
			})
		},
	}
	cmd.Flags().BoolVar(&mask, "mask", false, "print the text with every finding replaced by its category")
	return cmd
}

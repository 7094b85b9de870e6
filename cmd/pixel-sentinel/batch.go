package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/pixel-sentinel/internal/batch"
	"github.com/raaihank/pixel-sentinel/internal/redact"
)

func newBatchCmd() *cobra.Command {
	var (
		workers    int
		outputDir  string
		reportName string
		methodName string
	)

	cmd := &cobra.Command{
		Use:   "batch <manifest|directory>",
		Short: "Sanitize every image in a manifest or directory",
		Long: `Sanitize every image listed in a CSV, JSON-lines or Parquet manifest, or every
image directly inside a directory. Manifests need a "path" column and may carry
"method" and "output" columns. A Parquet report of all outcomes is written to
the output directory.`,
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
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Batch.Workers
			}
			if !cmd.Flags().Changed("out") {
				outputDir = cfg.Batch.OutputDir
			}
			if !cmd.Flags().Changed("report") {
				reportName = cfg.Batch.ReportName
			}

			a, err := newApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := batch.NewRunner(a.processor, batch.Config{
				Workers:       workers,
				OutputDir:     outputDir,
				ReportName:    reportName,
				DefaultMethod: method,
			}, a.logger.WithComponent("batch").Logger)

			result, err := runner.Run(ctx, args[0])
			if err != nil {
				a.logger.Error("Batch run failed", zap.Error(err))
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n=== Batch Summary ===\n")
			fmt.Fprintf(w, "Images:     %d\n", result.Total)
			fmt.Fprintf(w, "Redacted:   %d\n", result.Redacted)
			fmt.Fprintf(w, "Unscanned:  %d\n", result.Unscanned)
			fmt.Fprintf(w, "Failed:     %d\n", result.Failed)
			fmt.Fprintf(w, "Duration:   %v\n", result.Duration.Round(time.Millisecond))
			if result.Report != "" {
				fmt.Fprintf(w, "Report:     %s\n", result.Report)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d images failed", result.Failed, result.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "number of concurrent workers")
	cmd.Flags().StringVarP(&outputDir, "out", "o", "sanitized", "output directory")
	cmd.Flags().StringVar(&reportName, "report", "report.parquet", `report file name inside the output directory ("" to skip)`)
	cmd.Flags().StringVarP(&methodName, "method", "m", "", "default redaction method for items without one")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the sanitization audit trail",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest audit records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			store, err := openAudit(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(context.Background(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSOURCE\tMETHOD\tREASON\tCATEGORIES\tREGIONS\tIMAGE")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.CreatedAt.Local().Format(time.DateTime),
					r.Source, r.Method, r.Reason,
					strings.Join(r.Categories, ","), r.Regions, r.ImageSHA256[:min(12, len(r.ImageSHA256))])
			}
			return tw.Flush()
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audit totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			store, err := openAudit(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(context.Background())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n=== Audit Statistics ===\n")
			fmt.Fprintf(w, "Total:      %d\n", stats.Total)
			fmt.Fprintf(w, "Scanned:    %d\n", stats.Scanned)
			fmt.Fprintf(w, "Unscanned:  %d\n", stats.Unscanned)
			fmt.Fprintf(w, "Redacted:   %d\n", stats.Redacted)

			if len(stats.Categories) > 0 {
				names := make([]string, 0, len(stats.Categories))
				for name := range stats.Categories {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintf(w, "\n=== Categories ===\n")
				for _, name := range names {
					fmt.Fprintf(w, "%-16s %d\n", name, stats.Categories[name])
				}
			}
			return nil
		},
	}

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit records older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			store, err := openAudit(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(context.Background(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d records\n", n)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of records to delete")

	cmd.AddCommand(listCmd, statsCmd, pruneCmd)
	return cmd
}

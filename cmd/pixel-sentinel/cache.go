package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raaihank/pixel-sentinel/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the redis outcome cache",
	}

	connect := func() (*cache.OutcomeCache, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return nil, err
		}
		return cache.New(cache.Config{
			RedisURL:     cfg.Cache.RedisURL,
			KeyPrefix:    cfg.Cache.KeyPrefix,
			TTL:          cfg.Cache.TTL,
			PoolSize:     cfg.Cache.PoolSize,
			MinIdleConns: cfg.Cache.MinIdleConns,
		}, log.WithComponent("cache").Logger)
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.GetStats(context.Background())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n=== Cache Statistics ===\n")
			fmt.Fprintf(w, "Total Keys:         %d\n", stats.TotalKeys)
			fmt.Fprintf(w, "Memory Usage:       %.2f MB\n", float64(stats.MemoryUsage)/1024/1024)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Clear(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached outcomes\n", n)
			return nil
		},
	}

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

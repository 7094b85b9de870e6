package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/pixel-sentinel/internal/config"
	"github.com/raaihank/pixel-sentinel/internal/server"
)

func newServeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.NewLoader(configPath)
			if err != nil {
				return err
			}
			cfg := loader.Config()

			a, err := newApp(cfg, appOptions{events: true})
			if err != nil {
				return err
			}
			defer a.close()
			log := a.logger

			log.Info("Starting pixel-sentinel",
				zap.String("version", version),
				zap.String("commit", commit),
				zap.String("build_date", date),
				zap.String("config_file", loader.File()),
			)

			deps := server.Deps{
				Processor: a.processor,
				Hub:       a.hub,
				Version:   version,
			}
			if a.audit != nil {
				deps.Audit = a.audit
			}

			srv, err := server.New(cfg, log, deps)
			if err != nil {
				return err
			}

			if watch {
				err := loader.Watch(srv.Reload, func(err error) {
					log.Warn("Ignoring invalid configuration change", zap.Error(err))
				})
				if err != nil {
					log.Warn("Config watch disabled", zap.Error(err))
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			serverErrors := make(chan error, 1)
			go func() {
				serverErrors <- srv.Start(ctx)
			}()

			select {
			case err := <-serverErrors:
				if err != nil {
					log.Error("Server error", zap.Error(err))
				}
				return err
			case <-ctx.Done():
				log.Info("Shutdown signal received")

				// Give outstanding requests 30 seconds to complete
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := srv.Stop(shutdownCtx); err != nil {
					log.Error("Failed to shutdown server gracefully", zap.Error(err))
					return err
				}
				log.Info("Server shutdown complete")
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes")
	return cmd
}

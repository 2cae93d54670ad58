package commands

import (
	"context"
	"fmt"

	"github.com/ned1313/pdf-mirror/internal/auth"
	"github.com/ned1313/pdf-mirror/internal/server"
	"github.com/ned1313/pdf-mirror/internal/version"
	"github.com/spf13/cobra"
)

func (c *CLI) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(ctx, cfg, appOptions{metrics: cfg.Telemetry.Enabled, sweep: true})
			if err != nil {
				return err
			}
			defer a.close()

			logger := a.logger
			logger.Info("starting pdf-mirror", "version", version.String())
			logger.Info("configuration loaded",
				"port", cfg.Server.Port,
				"cache_dir", cfg.Cache.Dir,
				"cache_max_mb", cfg.Cache.MaxSizeMB,
				"database", cfg.Database.Enabled,
				"archive", cfg.Storage.Type,
			)

			if cfg.Auth.JWTSecret == "" {
				logger.Warn("auth.jwt_secret is not set; using a random secret, sessions end on restart")
			}
			if cfg.Auth.AdminPasswordHash == "" {
				logger.Warn("auth.admin_password_hash is not set; admin login is disabled")
			}

			authService, err := auth.NewFromConfig(cfg.Auth)
			if err != nil {
				return err
			}

			srv := server.New(cfg, server.Options{
				Cache:      a.cache,
				Downloader: a.downloader,
				Validator:  a.validator,
				Auth:       authService,
				DB:         a.db,
				Metrics:    a.metrics,
				Logger:     logger,
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			logger.Info("server stopped")
			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"constantProduct/internal/api"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pool engine over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("metrics-namespace", "amm", "prometheus metric namespace")
	serveCmd.Flags().Int("max-retries", 5, "retries of a conflicting unit of work")
	serveCmd.Flags().Duration("retry-backoff", 10*time.Millisecond, "initial conflict retry backoff")
	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	return runApp(cmd, func(ctx context.Context, a *app) error {
		metrics := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
		server := api.NewApp(a.svc, metrics, a.logger)

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.logger.Info("http server start",
				zap.String("listen", a.cfg.Listen),
				zap.String("backend", a.cfg.Backend),
			)
			if err := server.Listen(a.cfg.Listen, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			a.logger.Info("http server shutdown")
			return server.ShutdownWithContext(shutdownCtx)
		})
		return g.Wait()
	})
}

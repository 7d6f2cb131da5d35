package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-cms/pkg/simplecms/api"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
	"github.com/tendant/simple-cms/pkg/simplecms/urlstrategy"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand runs the HTTP API
func NewServeCommand() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CMS HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []config.Option
			if port != "" {
				extra = append(extra, config.WithPort(port))
			}
			cfg, err := loadConfig(cmd, extra...)
			if err != nil {
				return err
			}

			logger := cfg.NewLogger(os.Stderr)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cfg.Build(ctx, logger)
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer rt.Close()

			httpServer := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           newRouter(cfg, rt),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(ctx, httpServer, logger, cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

// newRouter assembles health checks, metrics and the CMS API.
func newRouter(cfg *config.ServerConfig, rt *config.Runtime) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.AccessLogMiddleware(rt.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics.Handler())
	}

	r.Mount(urlstrategy.DefaultAPIBaseURL, api.NewRouter(api.RouterConfig{
		Service: rt.Service,
		Validator: api.Validator{
			MaxUploadBytes:   cfg.MaxUploadBytes,
			AllowedMimeTypes: cfg.AllowedMimeTypes,
		},
		URLs:              rt.URLs,
		Logger:            rt.Logger,
		CORSOrigins:       cfg.CORSOrigins,
		PublicCacheMaxAge: cfg.PublicCacheMaxAge,
	}))

	return r
}

func serve(ctx context.Context, httpServer *http.Server, logger *slog.Logger, cfg *config.ServerConfig) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("simple-cms server starting",
			"addr", httpServer.Addr,
			"environment", cfg.Environment,
			"database", cfg.DatabaseType,
			"storage", cfg.Storage.Type,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exiting")
	return nil
}

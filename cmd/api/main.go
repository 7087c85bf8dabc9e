package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/workspace-ingest/internal/adapters/http"
	"github.com/kirillkom/workspace-ingest/internal/bootstrap"
	"github.com/kirillkom/workspace-ingest/internal/config"
	"github.com/kirillkom/workspace-ingest/internal/observability/logging"
	"github.com/kirillkom/workspace-ingest/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.New("api", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.AuthJWTSecret == "" {
		logger.Error("startup_failed", "error", "AUTH_JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    "api",
		Registerer: httpMetrics.Registerer(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingestor:  app.IngestUC,
		Documents: app.Repo,
		Watcher:   app.WatchUC,
		Remover:   app.RemoveUC,
		Deletions: app.DeletionUC,
		Trigger:   app.Queue,
		Breakers:  app.Executor,
	}, httpMetrics)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads stream through the handler; watch streams clear this deadline themselves.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("api_stopped")
}

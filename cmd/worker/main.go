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

	"github.com/kirillkom/workspace-ingest/internal/bootstrap"
	"github.com/kirillkom/workspace-ingest/internal/config"
	"github.com/kirillkom/workspace-ingest/internal/observability/logging"
	"github.com/kirillkom/workspace-ingest/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.New("worker", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    "worker",
		Registerer: workerMetrics.Registerer(),
		QueueLagObserver: func(lag time.Duration) {
			workerMetrics.ObserveQueueLag(lag)
		},
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
		return app.Queue.Subscribe(gctx, func(handlerCtx context.Context, documentID string) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, cfg.WorkerProcessTimeout)
			defer cancel()

			started := time.Now()
			workerMetrics.StartDocument()
			err := app.ProcessUC.ProcessByID(processCtx, documentID)
			workerMetrics.FinishDocument(time.Since(started), err)
			if err == nil {
				logger.Info("document_processed", "document_id", documentID, "duration", time.Since(started))
			}
			return err
		})
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/workspace-ingest/internal/config"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
	"github.com/kirillkom/workspace-ingest/internal/core/usecase"
	"github.com/kirillkom/workspace-ingest/internal/infrastructure/chunking"
	"github.com/kirillkom/workspace-ingest/internal/infrastructure/extractor"
	"github.com/kirillkom/workspace-ingest/internal/infrastructure/queue/nats"
	"github.com/kirillkom/workspace-ingest/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/workspace-ingest/internal/infrastructure/resilience"
	"github.com/kirillkom/workspace-ingest/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/workspace-ingest/internal/infrastructure/storage/memory"
	"github.com/kirillkom/workspace-ingest/internal/infrastructure/storage/s3"
	"github.com/kirillkom/workspace-ingest/internal/observability/metrics"
)

type Options struct {
	// Service labels pipeline metrics.
	Service string
	// Registerer receives pipeline metrics; nil disables them.
	Registerer prometheus.Registerer
	// WithoutQueue skips the NATS connection for processes that never publish or consume.
	WithoutQueue bool
	// QueueLagObserver receives delivery lag of consumed messages.
	QueueLagObserver func(time.Duration)
}

type App struct {
	Config config.Config

	Repo     ports.DocumentRepository
	Blobs    ports.BlobStore
	Queue    *nats.Queue
	Executor *resilience.Executor

	// IngestUC is nil when the app was built WithoutQueue.
	IngestUC    *usecase.IngestDocumentUseCase
	WatchUC     *usecase.StatusWatcherUseCase
	RemoveUC    *usecase.RemoveDocumentUseCase
	DeletionUC  *usecase.DeletionCoordinatorUseCase
	ProcessUC   *usecase.ProcessDocumentUseCase
	ReconcileUC *usecase.ReconcileOrphansUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := slog.Default()
	executor := resilience.NewExecutor(resilienceConfig(cfg))

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	var pipelineMetrics ports.PipelineMetrics = ports.NopPipelineMetrics{}
	if opts.Registerer != nil {
		pipelineMetrics = metrics.NewPipelineMetrics(opts.Service, opts.Registerer)
	}

	var queue *nats.Queue
	if !opts.WithoutQueue {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         "workspace-ingest-" + opts.Service,
			ResilienceExecutor: executor,
			LagObserver:        opts.QueueLagObserver,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
	}

	app := &App{
		Config:   cfg,
		Repo:     repo,
		Blobs:    blobs,
		Queue:    queue,
		Executor: executor,
	}

	app.WatchUC = usecase.NewStatusWatcherUseCase(repo, nil, usecase.WatcherConfig{
		Interval:      cfg.WatchInterval,
		EscalateAfter: cfg.WatchFailureEscalation,
	}, pipelineMetrics, logger)
	// Ingest and removal share one lock set so a re-upload never races a blob delete.
	var pathLocks *usecase.PathLocks
	if cfg.IngestPathLock {
		pathLocks = usecase.NewPathLocks()
	}
	app.RemoveUC = usecase.NewRemoveDocumentUseCase(repo, blobs, pipelineMetrics, logger,
		usecase.WithRemovePathLocks(pathLocks),
	)
	app.DeletionUC = usecase.NewDeletionCoordinatorUseCase(repo, app.RemoveUC, app.WatchUC, nil, cfg.DeletePromptTTL, logger)
	app.ReconcileUC = usecase.NewReconcileOrphansUseCase(repo, blobs, nil, cfg.ReconcileGrace, pipelineMetrics, logger)
	app.ProcessUC = usecase.NewProcessDocumentUseCase(
		repo,
		extractor.New(blobs),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		postgres.NewChunkRepository(db, cfg.ChunkBatchSize),
	)
	if queue != nil {
		app.IngestUC = usecase.NewIngestDocumentUseCase(repo, blobs, queue,
			usecase.WithPathLocks(pathLocks),
			usecase.WithIngestMetrics(pipelineMetrics),
			usecase.WithIngestLogger(logger),
		)
	}

	app.closeFn = func() {
		if queue != nil {
			queue.Close()
		}
		closeDB(db)
	}
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newBlobStore(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "", "localfs":
		return localfs.New(cfg.StoragePath)
	case "s3":
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			CreateBucket:    cfg.S3CreateBucket,
		}, executor)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	minRequests := cfg.ResilienceBreakerMinRequests
	if minRequests < 0 {
		minRequests = 0
	}
	return resilience.Config{
		RetryMaxAttempts:    cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff: cfg.ResilienceRetryInitialBackoff,
		RetryMaxBackoff:     cfg.ResilienceRetryMaxBackoff,
		BreakerEnabled:      cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:  uint32(minRequests),
		BreakerFailureRatio: cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:  cfg.ResilienceBreakerOpenTimeout,
	}
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("postgres_close_failed", "error", err)
	}
}

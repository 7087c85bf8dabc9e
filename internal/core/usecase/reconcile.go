package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

const DefaultReconcileGrace = 10 * time.Minute

// ReconcileOrphansUseCase deletes blobs that no document row references. Blobs
// younger than the grace period are skipped because their upload may still be
// between blob write and registration.
type ReconcileOrphansUseCase struct {
	repo    ports.DocumentRepository
	blobs   ports.BlobStore
	clock   ports.Clock
	grace   time.Duration
	metrics ports.PipelineMetrics
	logger  *slog.Logger
}

func NewReconcileOrphansUseCase(
	repo ports.DocumentRepository,
	blobs ports.BlobStore,
	clock ports.Clock,
	grace time.Duration,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
) *ReconcileOrphansUseCase {
	if clock == nil {
		clock = SystemClock()
	}
	if grace <= 0 {
		grace = DefaultReconcileGrace
	}
	if metrics == nil {
		metrics = ports.NopPipelineMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileOrphansUseCase{
		repo:    repo,
		blobs:   blobs,
		clock:   clock,
		grace:   grace,
		metrics: metrics,
		logger:  logger,
	}
}

func (uc *ReconcileOrphansUseCase) Reconcile(ctx context.Context, prefix string, dryRun bool) (*ports.ReconcileReport, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "reconcile", errors.New("prefix is required"))
	}

	objects, err := uc.blobs.List(ctx, prefix, ports.ListOptions{Sort: ports.SortByKey})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	referenced, err := uc.repo.PathsWithPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list referenced paths: %w", err)
	}

	report := &ports.ReconcileReport{
		Prefix:  prefix,
		Scanned: len(objects),
		Orphans: []string{},
		Removed: []string{},
		Skipped: []string{},
	}
	cutoff := uc.clock.Now().Add(-uc.grace)
	for _, obj := range objects {
		if _, ok := referenced[obj.Key]; ok {
			continue
		}
		if obj.LastModified.After(cutoff) {
			report.Skipped = append(report.Skipped, obj.Key)
			continue
		}
		report.Orphans = append(report.Orphans, obj.Key)
	}

	if dryRun || len(report.Orphans) == 0 {
		return report, nil
	}

	if err := uc.blobs.Delete(ctx, report.Orphans); err != nil {
		return report, fmt.Errorf("delete orphaned blobs: %w", err)
	}
	report.Removed = append(report.Removed, report.Orphans...)
	uc.metrics.RecordReconciled(len(report.Removed))
	uc.logger.Info("orphaned_blobs_removed", "prefix", prefix, "count", len(report.Removed))
	return report, nil
}

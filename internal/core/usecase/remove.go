package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

// RemoveDocumentUseCase deletes the metadata row before the blob, so a failed row
// deletion never leaves a row pointing at missing bytes.
type RemoveDocumentUseCase struct {
	repo    ports.DocumentRepository
	blobs   ports.BlobStore
	metrics ports.PipelineMetrics
	logger  *slog.Logger
	locks   *PathLocks
}

type RemoveOption func(*RemoveDocumentUseCase)

// WithRemovePathLocks holds the blob path lock across the reference check and the
// blob delete. Use the locks given to the ingest use case.
func WithRemovePathLocks(locks *PathLocks) RemoveOption {
	return func(uc *RemoveDocumentUseCase) {
		uc.locks = locks
	}
}

func NewRemoveDocumentUseCase(
	repo ports.DocumentRepository,
	blobs ports.BlobStore,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
	opts ...RemoveOption,
) *RemoveDocumentUseCase {
	if metrics == nil {
		metrics = ports.NopPipelineMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	uc := &RemoveDocumentUseCase{
		repo:    repo,
		blobs:   blobs,
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *RemoveDocumentUseCase) Remove(ctx context.Context, ownerID, documentID string) (*ports.RemovalResult, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" || strings.TrimSpace(ownerID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "remove document", errors.New("owner and document id are required"))
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, uc.deleteFailed("load document", err)
	}
	if doc.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "remove document", fmt.Errorf("id=%s", documentID))
	}

	if err := uc.repo.DeleteByID(ctx, documentID); err != nil {
		return nil, uc.deleteFailed("delete document row", err)
	}
	uc.metrics.RecordDeletion(nil)

	result := &ports.RemovalResult{Document: *doc}

	unlock := uc.locks.Lock(doc.Path)
	defer unlock()

	// Re-uploads of the same sanitized name register extra rows on one blob key.
	remaining, err := uc.repo.PathsWithPrefix(ctx, doc.Path)
	if err != nil {
		uc.logger.Warn("document_blob_kept",
			"document_id", documentID,
			"path", doc.Path,
			"reason", "reference check failed",
			"error", err,
		)
		return result, nil
	}
	if _, shared := remaining[doc.Path]; shared {
		uc.logger.Info("document_blob_kept",
			"document_id", documentID,
			"path", doc.Path,
			"reason", "blob still referenced",
		)
		return result, nil
	}

	if err := uc.blobs.Delete(ctx, []string{doc.Path}); err != nil {
		uc.metrics.RecordOrphan("delete")
		uc.logger.Error("orphaned_blob",
			"document_id", documentID,
			"path", doc.Path,
			"source", "document_delete",
			"error", err,
		)
		return result, nil
	}
	result.BlobRemoved = true

	uc.logger.Info("document_removed", "document_id", documentID, "path", doc.Path)
	return result, nil
}

func (uc *RemoveDocumentUseCase) deleteFailed(op string, err error) error {
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		return err
	}
	uc.metrics.RecordDeletion(err)
	return domain.WrapError(domain.ErrDeleteFailed, op, err)
}

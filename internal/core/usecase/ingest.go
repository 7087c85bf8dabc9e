package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

const compensationTimeout = 30 * time.Second

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	blobs   ports.BlobStore
	trigger ports.ProcessingTrigger
	metrics ports.PipelineMetrics
	logger  *slog.Logger
	locks   *PathLocks
	now     func() time.Time
}

type IngestOption func(*IngestDocumentUseCase)

// WithPathLocks serialises blob write and registration of uploads sharing a blob key.
// Pass the same locks to the remover so removal never deletes a re-uploaded blob.
// Nil disables locking.
func WithPathLocks(locks *PathLocks) IngestOption {
	return func(uc *IngestDocumentUseCase) {
		uc.locks = locks
	}
}

func WithIngestMetrics(metrics ports.PipelineMetrics) IngestOption {
	return func(uc *IngestDocumentUseCase) {
		if metrics != nil {
			uc.metrics = metrics
		}
	}
}

func WithIngestLogger(logger *slog.Logger) IngestOption {
	return func(uc *IngestDocumentUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	blobs ports.BlobStore,
	trigger ports.ProcessingTrigger,
	opts ...IngestOption,
) *IngestDocumentUseCase {
	uc := &IngestDocumentUseCase{
		repo:    repo,
		blobs:   blobs,
		trigger: trigger,
		metrics: ports.NopPipelineMetrics{},
		logger:  slog.Default(),
		locks:   NewPathLocks(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Ingest stores the file, registers it as PENDING and submits it for processing.
// A trigger failure returns the registered document together with the error.
func (uc *IngestDocumentUseCase) Ingest(ctx context.Context, req ports.IngestRequest) (*domain.Document, error) {
	body, name, err := validateIngest(req)
	if err != nil {
		return nil, uc.fail(&domain.IngestError{
			Step: domain.StepValidate,
			Kind: domain.ErrInvalidInput,
			Err:  err,
		})
	}

	path := domain.BlobKey(req.OwnerID, req.WorkspaceID, name)
	unlock := uc.locks.Lock(path)

	err = uc.blobs.Put(ctx, path, body, ports.PutOptions{
		Overwrite:   true,
		ContentType: req.ContentType,
	})
	if err != nil {
		unlock()
		return nil, uc.fail(&domain.IngestError{
			Step: domain.StepBlobWrite,
			Kind: domain.ErrBlobWriteFailed,
			Path: path,
			Err:  err,
		})
	}

	now := uc.now()
	doc := &domain.Document{
		WorkspaceID: req.WorkspaceID,
		OwnerID:     req.OwnerID,
		Path:        path,
		Name:        name,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	id, err := uc.repo.Insert(ctx, doc)
	if err != nil {
		ingestErr := &domain.IngestError{
			Step: domain.StepMetadataWrite,
			Kind: domain.ErrMetadataWriteFailed,
			Path: path,
			Err:  err,
		}
		if compErr := uc.compensate(ctx, path); compErr != nil {
			ingestErr.Orphaned = true
			ingestErr.CompensateErr = compErr
		}
		unlock()
		return nil, uc.fail(ingestErr)
	}
	unlock()
	doc.ID = id

	if err := uc.trigger.Submit(ctx, id); err != nil {
		return doc, uc.fail(&domain.IngestError{
			Step:       domain.StepTrigger,
			Kind:       domain.ErrTriggerFailed,
			DocumentID: id,
			Path:       path,
			Err:        err,
		})
	}

	uc.metrics.RecordIngest(domain.StepTrigger, nil)
	uc.logger.Info("document_ingested",
		"document_id", id,
		"workspace_id", doc.WorkspaceID,
		"path", path,
	)
	return doc, nil
}

// RetryTrigger re-submits an already registered document without touching storage.
func (uc *IngestDocumentUseCase) RetryTrigger(ctx context.Context, documentID string) error {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "retry trigger", errors.New("document id is required"))
	}
	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return fmt.Errorf("load document for trigger: %w", err)
	}
	if err := uc.trigger.Submit(ctx, documentID); err != nil {
		uc.metrics.RecordIngest(domain.StepTrigger, err)
		return domain.WrapError(domain.ErrTriggerFailed, "retry trigger", err)
	}
	uc.logger.Info("document_trigger_retried", "document_id", documentID)
	return nil
}

// compensate removes the blob of a failed registration. It survives caller cancellation
// so an aborted request does not leak the blob.
func (uc *IngestDocumentUseCase) compensate(ctx context.Context, path string) error {
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := uc.blobs.Delete(compCtx, []string{path})
	uc.metrics.RecordCompensation(err)
	if err != nil {
		uc.metrics.RecordOrphan("ingest")
		uc.logger.Error("orphaned_blob",
			"path", path,
			"source", "ingest_compensation",
			"error", err,
		)
		return err
	}
	return nil
}

func (uc *IngestDocumentUseCase) fail(err *domain.IngestError) error {
	uc.metrics.RecordIngest(err.Step, err)
	uc.logger.Warn("document_ingest_failed",
		"step", string(err.Step),
		"document_id", err.DocumentID,
		"path", err.Path,
		"orphaned_blob", err.Orphaned,
		"error", err.Err,
	)
	return err
}

func validateIngest(req ports.IngestRequest) (io.Reader, string, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, "", errors.New("authenticated owner is required")
	}
	if strings.TrimSpace(req.WorkspaceID) == "" {
		return nil, "", errors.New("workspace id is required")
	}
	if strings.Contains(req.OwnerID, "/") || strings.Contains(req.WorkspaceID, "/") {
		return nil, "", errors.New("owner and workspace ids must not contain '/'")
	}
	if req.Body == nil {
		return nil, "", errors.New("file is required")
	}

	name := domain.SanitizeName(req.FileName)
	if name == "" {
		return nil, "", fmt.Errorf("file name %q has no usable characters", req.FileName)
	}
	// "." and ".." would address the workspace or owner directory, not a file.
	if strings.Trim(name, ".") == "" {
		return nil, "", fmt.Errorf("file name %q is only dots", req.FileName)
	}

	body := bufio.NewReader(req.Body)
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, "", errors.New("file is empty")
		}
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return body, name, nil
}

// PathLocks is a set of mutexes keyed by blob path. A nil *PathLocks never blocks.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*pathLock)}
}

// Lock blocks until key is free and returns the release func, safe to call twice.
func (p *PathLocks) Lock(key string) func() {
	if p == nil {
		return func() {}
	}
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pathLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			p.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(p.locks, key)
			}
			p.mu.Unlock()
		})
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

const DefaultDeletePromptTTL = 2 * time.Minute

type listingInvalidator interface {
	Invalidate(workspaceID string)
}

type pendingDeletion struct {
	prompt  ports.DeletionPrompt
	ownerID string
}

// DeletionCoordinatorUseCase holds open deletion prompts until they are confirmed,
// cancelled or expired.
type DeletionCoordinatorUseCase struct {
	repo        ports.DocumentReader
	remover     ports.DocumentRemover
	invalidator listingInvalidator
	clock       ports.Clock
	ttl         time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingDeletion
}

func NewDeletionCoordinatorUseCase(
	repo ports.DocumentReader,
	remover ports.DocumentRemover,
	invalidator listingInvalidator,
	clock ports.Clock,
	ttl time.Duration,
	logger *slog.Logger,
) *DeletionCoordinatorUseCase {
	if clock == nil {
		clock = SystemClock()
	}
	if ttl <= 0 {
		ttl = DefaultDeletePromptTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeletionCoordinatorUseCase{
		repo:        repo,
		remover:     remover,
		invalidator: invalidator,
		clock:       clock,
		ttl:         ttl,
		logger:      logger,
		pending:     make(map[string]pendingDeletion),
	}
}

// RequestDeletion presents the intent to delete. Nothing is removed until Confirm.
func (uc *DeletionCoordinatorUseCase) RequestDeletion(ctx context.Context, ownerID, documentID string) (*ports.DeletionPrompt, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "request deletion", errors.New("owner and document id are required"))
	}
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document for deletion: %w", err)
	}
	if doc.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "request deletion", fmt.Errorf("id=%s", documentID))
	}

	now := uc.clock.Now()
	prompt := ports.DeletionPrompt{
		Token:       uuid.NewString(),
		DocumentID:  doc.ID,
		WorkspaceID: doc.WorkspaceID,
		Name:        doc.Name,
		ExpiresAt:   now.Add(uc.ttl),
	}

	uc.mu.Lock()
	uc.pruneLocked(now)
	uc.pending[prompt.Token] = pendingDeletion{prompt: prompt, ownerID: ownerID}
	uc.mu.Unlock()

	return &prompt, nil
}

// Confirm performs the deletion. The prompt is dismissed whatever the outcome; a
// failure leaves the document intact and is reported through the outcome message
// and a wrapped ErrDeleteFailed.
func (uc *DeletionCoordinatorUseCase) Confirm(ctx context.Context, ownerID, token string) (*ports.DeletionOutcome, error) {
	pending, err := uc.take(ownerID, token)
	if err != nil {
		return nil, err
	}

	outcome := &ports.DeletionOutcome{DocumentID: pending.prompt.DocumentID}
	if _, err := uc.remover.Remove(ctx, ownerID, pending.prompt.DocumentID); err != nil {
		outcome.Message = fmt.Sprintf("could not delete %q: %v", pending.prompt.Name, err)
		uc.logger.Warn("document_delete_failed",
			"document_id", pending.prompt.DocumentID,
			"error", err,
		)
		if !domain.IsKind(err, domain.ErrDeleteFailed) && !domain.IsKind(err, domain.ErrDocumentNotFound) {
			err = domain.WrapError(domain.ErrDeleteFailed, "confirm deletion", err)
		}
		return outcome, err
	}

	if uc.invalidator != nil {
		uc.invalidator.Invalidate(pending.prompt.WorkspaceID)
	}
	outcome.Deleted = true
	outcome.Message = fmt.Sprintf("document %q deleted", pending.prompt.Name)
	return outcome, nil
}

// Cancel dismisses a prompt without touching the document.
func (uc *DeletionCoordinatorUseCase) Cancel(ownerID, token string) error {
	_, err := uc.take(ownerID, token)
	return err
}

func (uc *DeletionCoordinatorUseCase) take(ownerID, token string) (pendingDeletion, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.pruneLocked(uc.clock.Now())
	pending, ok := uc.pending[token]
	if !ok || pending.ownerID != ownerID {
		return pendingDeletion{}, domain.WrapError(domain.ErrPromptNotFound, "deletion prompt", fmt.Errorf("token=%s", token))
	}
	delete(uc.pending, token)
	return pending, nil
}

func (uc *DeletionCoordinatorUseCase) pruneLocked(now time.Time) {
	for token, pending := range uc.pending {
		if !now.Before(pending.prompt.ExpiresAt) {
			delete(uc.pending, token)
		}
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

// MinChunkChars drops whitespace-trimmed chunks that are too short to carry content.
const MinChunkChars = 10

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	chunks    ports.ChunkStore
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	chunks ports.ChunkStore,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		chunks:    chunks,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.processPipeline(ctx, documentID); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusCompleted, ""); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) error {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}

	pages, err := uc.extractText(ctx, doc)
	if err != nil {
		return err
	}

	chunks, err := uc.chunk(doc, pages)
	if err != nil {
		return err
	}

	if err := uc.chunks.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) ([]ports.PageText, error) {
	pages, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	for _, page := range pages {
		if strings.TrimSpace(page.Text) != "" {
			return pages, nil
		}
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
}

func (uc *ProcessDocumentUseCase) chunk(doc *domain.Document, pages []ports.PageText) ([]domain.DocumentChunk, error) {
	out := make([]domain.DocumentChunk, 0, len(pages))
	for _, page := range pages {
		for _, piece := range uc.chunker.Split(page.Text) {
			piece = strings.TrimSpace(piece)
			if len([]rune(piece)) <= MinChunkChars {
				continue
			}
			out = append(out, domain.DocumentChunk{
				DocumentID:  doc.ID,
				WorkspaceID: doc.WorkspaceID,
				OwnerID:     doc.OwnerID,
				Seq:         len(out),
				Page:        page.Page,
				Content:     piece,
			})
		}
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return out, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

const DefaultChunkBatchSize = 20

// ChunkRepository replaces the chunk set of a document in one transaction,
// inserting rows in multi-value batches.
type ChunkRepository struct {
	db        *sql.DB
	batchSize int
}

func NewChunkRepository(db *sql.DB, batchSize int) *ChunkRepository {
	if batchSize <= 0 {
		batchSize = DefaultChunkBatchSize
	}
	return &ChunkRepository{db: db, batchSize: batchSize}
}

func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	for start := 0; start < len(chunks); start += r.batchSize {
		end := min(start+r.batchSize, len(chunks))
		query, args := chunkInsertBatch(documentID, chunks[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert chunk batch %d-%d: %w", start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}

func chunkInsertBatch(documentID string, batch []domain.DocumentChunk) (string, []any) {
	const cols = 6
	var b strings.Builder
	b.WriteString("INSERT INTO document_chunks (document_id, seq, workspace_id, owner_id, page, content) VALUES ")
	args := make([]any, 0, len(batch)*cols)
	for i, chunk := range batch {
		if i > 0 {
			b.WriteString(",")
		}
		base := i * cols
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, documentID, chunk.Seq, chunk.WorkspaceID, chunk.OwnerID, chunk.Page, chunk.Content)
	}
	return b.String(), args
}

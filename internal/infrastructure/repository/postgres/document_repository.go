package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	workspace_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_workspace_created ON documents(workspace_id, created_at);
CREATE INDEX IF NOT EXISTS idx_documents_storage_path ON documents(storage_path text_pattern_ops);

CREATE TABLE IF NOT EXISTS document_chunks (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	workspace_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	page INTEGER NOT NULL,
	content TEXT NOT NULL,
	PRIMARY KEY (document_id, seq)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Insert(ctx context.Context, doc *domain.Document) (string, error) {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.Status == "" {
		doc.Status = domain.StatusPending
	}

	var id string
	err := r.db.QueryRowContext(ctx, `
INSERT INTO documents (workspace_id, owner_id, storage_path, name, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`, doc.WorkspaceID, doc.OwnerID, doc.Path, doc.Name, string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, workspace_id, owner_id, storage_path, name, status, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, workspace_id, owner_id, storage_path, name, status, error_message, created_at, updated_at
FROM documents
WHERE workspace_id = $1
ORDER BY created_at ASC, id ASC
`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(result, "delete document", id)
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(result, "update document status", id)
}

func (r *DocumentRepository) PathsWithPrefix(ctx context.Context, prefix string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT storage_path
FROM documents
WHERE storage_path LIKE $1 ESCAPE '\'
`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list document paths: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan document path: %w", err)
		}
		out[path] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document paths: %w", err)
	}
	return out, nil
}

func requireAffected(result sql.Result, op, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type documentScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row documentScanner) (domain.Document, error) {
	var doc domain.Document
	var status string
	err := row.Scan(
		&doc.ID,
		&doc.WorkspaceID,
		&doc.OwnerID,
		&doc.Path,
		&doc.Name,
		&status,
		&doc.Error,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Status = domain.DocumentStatus(status)
	return doc, nil
}

package ports

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

type IngestRequest struct {
	OwnerID     string
	WorkspaceID string
	FileName    string
	ContentType string
	Body        io.Reader
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Ingest(ctx context.Context, req IngestRequest) (*domain.Document, error)
	RetryTrigger(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// StatusWatcher streams full workspace listings until the consumer stops.
type StatusWatcher interface {
	Watch(ctx context.Context, workspaceID string) iter.Seq2[domain.DocumentListing, error]
	Snapshot(ctx context.Context, workspaceID string) (domain.DocumentListing, error)
	Invalidate(workspaceID string)
}

type RemovalResult struct {
	Document    domain.Document `json:"document"`
	BlobRemoved bool            `json:"blob_removed"`
}

// DocumentRemover deletes both the metadata row and the blob of a document.
type DocumentRemover interface {
	Remove(ctx context.Context, ownerID, documentID string) (*RemovalResult, error)
}

type DeletionPrompt struct {
	Token       string    `json:"token"`
	DocumentID  string    `json:"document_id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type DeletionOutcome struct {
	Deleted    bool   `json:"deleted"`
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
}

// DeletionCoordinator gates destructive removal behind present-intent then confirm-or-cancel.
type DeletionCoordinator interface {
	RequestDeletion(ctx context.Context, ownerID, documentID string) (*DeletionPrompt, error)
	Confirm(ctx context.Context, ownerID, token string) (*DeletionOutcome, error)
	Cancel(ownerID, token string) error
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

type ReconcileReport struct {
	Prefix  string   `json:"prefix"`
	Scanned int      `json:"scanned"`
	Orphans []string `json:"orphans"`
	Removed []string `json:"removed"`
	Skipped []string `json:"skipped"`
}

// OrphanReconciler removes blobs left without a metadata row.
type OrphanReconciler interface {
	Reconcile(ctx context.Context, prefix string, dryRun bool) (*ReconcileReport, error)
}

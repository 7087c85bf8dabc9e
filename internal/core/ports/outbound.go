package ports

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

type PutOptions struct {
	// Overwrite allows replacing an existing object at the same key.
	Overwrite   bool
	ContentType string
}

type ListSort string

const (
	SortByKey          ListSort = "key"
	SortByLastModified ListSort = "last_modified"
)

type ListOptions struct {
	Sort  ListSort
	Limit int
}

// Apply orders objects by key, or newest first for SortByLastModified, then truncates to Limit.
func (o ListOptions) Apply(objects []BlobObject) []BlobObject {
	switch o.Sort {
	case SortByLastModified:
		sort.SliceStable(objects, func(i, j int) bool {
			if objects[i].LastModified.Equal(objects[j].LastModified) {
				return objects[i].Key < objects[j].Key
			}
			return objects[i].LastModified.After(objects[j].LastModified)
		})
	default:
		sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	}
	if o.Limit > 0 && len(objects) > o.Limit {
		objects = objects[:o.Limit]
	}
	return objects
}

type BlobObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobStore stores source documents under hierarchical path keys.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, keys []string) error
	List(ctx context.Context, prefix string, opts ListOptions) ([]BlobObject, error)
}

// DocumentRepository is the metadata store holding document rows.
type DocumentRepository interface {
	// Insert registers a document and returns the identifier assigned by the store.
	Insert(ctx context.Context, doc *domain.Document) (string, error)
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Document, error)
	DeleteByID(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	PathsWithPrefix(ctx context.Context, prefix string) (map[string]struct{}, error)
}

// ChunkStore persists extracted text chunks produced by the worker.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error
}

// ProcessingTrigger submits a document for out-of-band processing.
type ProcessingTrigger interface {
	Submit(ctx context.Context, documentID string) error
}

// TriggerSubscriber consumes submitted document ids until ctx is done.
type TriggerSubscriber interface {
	Subscribe(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts page texts from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]PageText, error)
}

type PageText struct {
	Page int
	Text string
}

type Chunker interface {
	Split(text string) []string
}

// Clock schedules watcher ticks.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// PipelineMetrics records ingestion, watcher and deletion outcomes.
type PipelineMetrics interface {
	RecordIngest(step domain.IngestStep, err error)
	RecordCompensation(err error)
	RecordOrphan(source string)
	RecordPoll(err error)
	RecordDeletion(err error)
	RecordReconciled(removed int)
}

type NopPipelineMetrics struct{}

func (NopPipelineMetrics) RecordIngest(domain.IngestStep, error) {}
func (NopPipelineMetrics) RecordCompensation(error)              {}
func (NopPipelineMetrics) RecordOrphan(string)                   {}
func (NopPipelineMetrics) RecordPoll(error)                      {}
func (NopPipelineMetrics) RecordDeletion(error)                  {}
func (NopPipelineMetrics) RecordReconciled(int)                  {}

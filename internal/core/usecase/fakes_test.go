package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

type repoFake struct {
	mu        sync.Mutex
	docs      map[string]domain.Document
	nextID    int
	insertErr error
	listErr   error
	deleteErr error
	inserts   int
	lists     int
	statuses  []domain.DocumentStatus
}

func newRepoFake() *repoFake {
	return &repoFake{docs: make(map[string]domain.Document)}
}

func (f *repoFake) Insert(_ context.Context, doc *domain.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.nextID++
	id := fmt.Sprintf("doc-%d", f.nextID)
	stored := *doc
	stored.ID = id
	f.docs[id] = stored
	return id, nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return &doc, nil
}

func (f *repoFake) ListByWorkspace(_ context.Context, workspaceID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Document, 0)
	for _, doc := range f.docs {
		if doc.WorkspaceID == workspaceID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *repoFake) DeleteByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	delete(f.docs, id)
	return nil
}

func (f *repoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", fmt.Errorf("id=%s", id))
	}
	doc.Status = status
	doc.Error = errMessage
	f.docs[id] = doc
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *repoFake) PathsWithPrefix(_ context.Context, prefix string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{})
	for _, doc := range f.docs {
		if strings.HasPrefix(doc.Path, prefix) {
			out[doc.Path] = struct{}{}
		}
	}
	return out, nil
}

func (f *repoFake) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type blobFake struct {
	mu        sync.Mutex
	objects   map[string][]byte
	modified  map[string]time.Time
	putErr    error
	deleteErr error
	puts      []string
	deletes   [][]string
}

func newBlobFake() *blobFake {
	return &blobFake{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
	}
}

func (f *blobFake) Put(_ context.Context, key string, body io.Reader, opts ports.PutOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	if _, exists := f.objects[key]; exists && !opts.Overwrite {
		return errors.New("object exists")
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = raw
	f.modified[key] = time.Now()
	f.puts = append(f.puts, key)
	return nil
}

func (f *blobFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(strings.NewReader(string(raw))), nil
}

func (f *blobFake) Delete(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, append([]string(nil), keys...))
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, key := range keys {
		delete(f.objects, key)
		delete(f.modified, key)
	}
	return nil
}

func (f *blobFake) List(_ context.Context, prefix string, opts ports.ListOptions) ([]ports.BlobObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.BlobObject, 0)
	for key, raw := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ports.BlobObject{Key: key, Size: int64(len(raw)), LastModified: f.modified[key]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *blobFake) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

type triggerFake struct {
	mu        sync.Mutex
	submitted []string
	err       error
}

func (f *triggerFake) Submit(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, documentID)
	return nil
}

// fakeClock hands out tick channels the test fires explicitly.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	armed chan chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		armed: make(chan chan time.Time, 16),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.armed <- ch
	return ch
}

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (f *repoFake) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

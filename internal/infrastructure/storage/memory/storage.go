package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Storage keeps blobs in process memory. It backs local runs and tests.
type Storage struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

func New() *Storage {
	return &Storage{
		objects: make(map[string]object),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Storage) Put(_ context.Context, key string, data io.Reader, opts ports.PutOptions) error {
	if key == "" {
		return domain.WrapError(domain.ErrInvalidInput, "put blob", fmt.Errorf("empty key"))
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read blob body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; exists && !opts.Overwrite {
		return domain.WrapError(domain.ErrBlobExists, "put blob", fmt.Errorf("key=%s", key))
	}
	s.objects[key] = object{data: raw, contentType: opts.ContentType, modified: s.now()}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrBlobNotFound, "open blob", fmt.Errorf("key=%s", key))
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Storage) Delete(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

func (s *Storage) List(_ context.Context, prefix string, opts ports.ListOptions) ([]ports.BlobObject, error) {
	s.mu.RLock()
	out := make([]ports.BlobObject, 0, len(s.objects))
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ports.BlobObject{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified})
		}
	}
	s.mu.RUnlock()
	return opts.Apply(out), nil
}

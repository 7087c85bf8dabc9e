package httpadapter

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/workspace-ingest/internal/config"
	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

const testJWTSecret = "test-secret"

type ingestorFake struct {
	mu       sync.Mutex
	requests []ports.IngestRequest
	bodies   []string
	doc      *domain.Document
	err      error
	retryErr error
	retried  []string
}

func (f *ingestorFake) Ingest(_ context.Context, req ports.IngestRequest) (*domain.Document, error) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, string(raw))
	return f.doc, f.err
}

func (f *ingestorFake) RetryTrigger(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, documentID)
	return f.retryErr
}

type documentsFake struct {
	docs map[string]domain.Document
}

func (f documentsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return &doc, nil
}

type watcherFake struct {
	listings    []domain.DocumentListing
	errs        []error
	invalidated []string
}

func (f *watcherFake) Watch(_ context.Context, workspaceID string) iter.Seq2[domain.DocumentListing, error] {
	return func(yield func(domain.DocumentListing, error) bool) {
		for i, listing := range f.listings {
			var err error
			if i < len(f.errs) {
				err = f.errs[i]
			}
			if !yield(listing, err) {
				return
			}
		}
	}
}

func (f *watcherFake) Snapshot(_ context.Context, workspaceID string) (domain.DocumentListing, error) {
	if len(f.listings) == 0 {
		return domain.DocumentListing{WorkspaceID: workspaceID, Documents: []domain.Document{}}, nil
	}
	return f.listings[0], nil
}

func (f *watcherFake) Invalidate(workspaceID string) {
	f.invalidated = append(f.invalidated, workspaceID)
}

type removerFake struct {
	result *ports.RemovalResult
	err    error
}

func (f removerFake) Remove(context.Context, string, string) (*ports.RemovalResult, error) {
	return f.result, f.err
}

type deletionsFake struct {
	prompt    *ports.DeletionPrompt
	outcome   *ports.DeletionOutcome
	err       error
	cancelErr error
}

func (f deletionsFake) RequestDeletion(context.Context, string, string) (*ports.DeletionPrompt, error) {
	return f.prompt, f.err
}

func (f deletionsFake) Confirm(context.Context, string, string) (*ports.DeletionOutcome, error) {
	return f.outcome, f.err
}

func (f deletionsFake) Cancel(string, string) error {
	return f.cancelErr
}

type triggerFake struct {
	submitted []string
	err       error
}

func (f *triggerFake) Submit(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, documentID)
	return nil
}

func testServices() Services {
	return Services{
		Ingestor:  &ingestorFake{},
		Documents: documentsFake{docs: map[string]domain.Document{}},
		Watcher:   &watcherFake{},
		Remover:   removerFake{},
		Deletions: deletionsFake{},
		Trigger:   &triggerFake{},
	}
}

func newTestHandler(cfg config.Config) (http.Handler, Services) {
	if cfg.AuthJWTSecret == "" {
		cfg.AuthJWTSecret = testJWTSecret
	}
	services := testServices()
	return NewRouter(cfg, services, nil).Handler(), services
}

func newHandlerWith(services Services) http.Handler {
	return NewRouter(config.Config{AuthJWTSecret: testJWTSecret}, services, nil).Handler()
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

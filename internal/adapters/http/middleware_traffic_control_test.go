package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/config"
	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler, _ := newTestHandler(config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

// streamingWatcher yields one listing and then holds the stream open until the
// client goes away.
type streamingWatcher struct {
	watcherFake
	opened chan struct{}
}

func (w *streamingWatcher) Watch(ctx context.Context, workspaceID string) iter.Seq2[domain.DocumentListing, error] {
	return func(yield func(domain.DocumentListing, error) bool) {
		if !yield(domain.DocumentListing{WorkspaceID: workspaceID, Documents: []domain.Document{}}, nil) {
			return
		}
		close(w.opened)
		<-ctx.Done()
	}
}

func TestBackpressureDoesNotCountWatchStreams(t *testing.T) {
	watcher := &streamingWatcher{opened: make(chan struct{})}
	services := testServices()
	services.Watcher = watcher
	handler := NewRouter(config.Config{
		AuthJWTSecret:       testJWTSecret,
		APIMaxInFlight:      1,
		APIBackpressureWait: 20 * time.Millisecond,
	}, services, nil).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	streamReq := httptest.NewRequest(http.MethodGet, "/v1/workspaces/w1/documents/watch", nil).WithContext(ctx)
	streamReq.Header.Set("Authorization", bearer(t, "u1"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(httptest.NewRecorder(), streamReq)
	}()

	select {
	case <-watcher.opened:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for watch stream")
	}

	for i := 0; i < 2; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d with an open watch stream expected 200, got %d", i, res.Code)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("watch stream did not end after cancellation")
	}
}

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/v1/workspaces/w1/documents":       "/v1/workspaces/{workspace_id}/documents",
		"/v1/workspaces/w1/documents/watch": "/v1/workspaces/{workspace_id}/documents/watch",
		"/v1/documents/abc/trigger":         "/v1/documents/{document_id}/trigger",
		"/v1/deletions/tok/confirm":         "/v1/deletions/{token}/confirm",
		"/healthz":                          "/healthz",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPipelineMetricsExposedOnServerRegistry(t *testing.T) {
	server := NewHTTPServerMetrics("api")
	pipeline := NewPipelineMetrics("api", server.Registerer())
	pipeline.RecordIngest(domain.StepMetadataWrite, errors.New("boom"))
	pipeline.RecordOrphan("ingest")
	pipeline.RecordReconciled(3)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`wsi_ingest_uploads_total{service="api",status="error",step="metadata_write"} 1`,
		`wsi_storage_orphaned_blobs_total{service="api",source="ingest"} 1`,
		`wsi_storage_reconciled_blobs_total{service="api"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestWorkerMetricsOutcomes(t *testing.T) {
	worker := NewWorkerMetrics("worker")
	worker.StartDocument()
	worker.FinishDocument(time.Second, nil)
	worker.StartDocument()
	worker.FinishDocument(time.Second, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty")))
	worker.StartDocument()
	worker.FinishDocument(time.Second, errors.New("db down"))
	worker.ObserveQueueLag(250 * time.Millisecond)
	worker.ObserveQueueLag(-time.Second)

	rec := httptest.NewRecorder()
	worker.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`wsi_worker_document_process_total{outcome="completed",service="worker"} 1`,
		`wsi_worker_document_process_total{outcome="rejected",service="worker"} 1`,
		`wsi_worker_document_process_total{outcome="failed",service="worker"} 1`,
		`wsi_worker_document_process_in_flight{service="worker"} 0`,
		`wsi_worker_queue_lag_seconds_count{service="worker"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

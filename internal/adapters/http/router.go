package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/config"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
	"github.com/kirillkom/workspace-ingest/internal/observability/metrics"
)

const defaultMaxUploadBytes = 50 << 20

// Services groups the inbound ports the router dispatches to.
type Services struct {
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Watcher   ports.StatusWatcher
	Remover   ports.DocumentRemover
	Deletions ports.DeletionCoordinator
	Trigger   ports.ProcessingTrigger
	// Breakers is optional; when set, /healthz reports operations whose circuit is open.
	Breakers breakerReporter
}

type breakerReporter interface {
	OpenOperations() []string
}

type Router struct {
	services Services
	metrics  *metrics.HTTPServerMetrics

	jwtSecret      []byte
	webhookSecret  string
	maxUploadBytes int64

	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
}

func NewRouter(cfg config.Config, services Services, httpMetrics *metrics.HTTPServerMetrics) *Router {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Router{
		services:         services,
		metrics:          httpMetrics,
		jwtSecret:        []byte(cfg.AuthJWTSecret),
		webhookSecret:    cfg.WebhookSecret,
		maxUploadBytes:   maxUpload,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
	}
}

func (rt *Router) Handler() http.Handler {
	// Watch streams live as long as the client stays, so they do not take in-flight slots.
	gated := newBackpressureGate(rt.maxInFlight, rt.backpressureWait)

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", gated(http.HandlerFunc(rt.healthz)))
	if rt.metrics != nil {
		mux.Handle("GET /metrics", gated(rt.metrics.Handler()))
	}

	mux.Handle("POST /v1/workspaces/{workspaceID}/documents", gated(rt.authenticated(rt.uploadDocument)))
	mux.Handle("GET /v1/workspaces/{workspaceID}/documents", gated(rt.authenticated(rt.listDocuments)))
	mux.Handle("GET /v1/workspaces/{workspaceID}/documents/watch", rt.authenticated(rt.watchDocuments))

	mux.Handle("GET /v1/documents/{documentID}", gated(rt.authenticated(rt.getDocumentByID)))
	mux.Handle("POST /v1/documents/{documentID}/trigger", gated(rt.authenticated(rt.retryTrigger)))
	mux.Handle("DELETE /v1/documents/{documentID}", gated(rt.authenticated(rt.removeDocument)))

	mux.Handle("POST /v1/documents/{documentID}/deletion", gated(rt.authenticated(rt.requestDeletion)))
	mux.Handle("POST /v1/deletions/{token}/confirm", gated(rt.authenticated(rt.confirmDeletion)))
	mux.Handle("DELETE /v1/deletions/{token}", gated(rt.authenticated(rt.cancelDeletion)))

	mux.Handle("POST /v1/webhooks/process-document", gated(http.HandlerFunc(rt.processDocumentWebhook)))

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

type healthResponse struct {
	Status       string   `json:"status"`
	OpenCircuits []string `json:"open_circuits,omitempty"`
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if rt.services.Breakers != nil {
		if open := rt.services.Breakers.OpenOperations(); len(open) > 0 {
			resp.Status = "degraded"
			resp.OpenCircuits = open
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

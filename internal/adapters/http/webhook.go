package httpadapter

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

const webhookSecretHeader = "X-Webhook-Secret"

// rowChangeEvent is the database webhook payload emitted on row changes.
type rowChangeEvent struct {
	Type   string         `json:"type"`
	Table  string         `json:"table"`
	Schema string         `json:"schema"`
	Record map[string]any `json:"record"`
}

func (rt *Router) processDocumentWebhook(w http.ResponseWriter, r *http.Request) {
	if rt.webhookSecret != "" &&
		subtle.ConstantTimeCompare([]byte(r.Header.Get(webhookSecretHeader)), []byte(rt.webhookSecret)) != 1 {
		writeError(w, domain.WrapError(domain.ErrUnauthorized, "process document webhook", errors.New("invalid webhook secret")))
		return
	}

	var event rowChangeEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&event); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode webhook", err))
		return
	}
	if event.Type != "INSERT" || event.Table != "documents" {
		writeJSON(w, http.StatusOK, map[string]string{"message": "event ignored"})
		return
	}

	documentID := fmt.Sprint(event.Record["id"])
	if event.Record["id"] == nil || documentID == "" {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "process document webhook", errors.New("record id is required")))
		return
	}
	if err := rt.services.Trigger.Submit(r.Context(), documentID); err != nil {
		writeError(w, domain.WrapError(domain.ErrTriggerFailed, "process document webhook", err))
		return
	}

	slog.Info("document_process_enqueued", "document_id", documentID, "source", "webhook")
	writeJSON(w, http.StatusOK, map[string]string{"message": "document processing enqueued", "document_id": documentID})
}

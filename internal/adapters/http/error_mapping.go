package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound), domain.IsKind(err, domain.ErrPromptNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrBlobWriteFailed), domain.IsKind(err, domain.ErrTriggerFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error        string `json:"error"`
	Step         string `json:"step,omitempty"`
	DocumentID   string `json:"document_id,omitempty"`
	OrphanedBlob bool   `json:"orphaned_blob,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	if ingestErr, ok := domain.AsIngestError(err); ok {
		resp.Step = string(ingestErr.Step)
		resp.DocumentID = ingestErr.DocumentID
		resp.OrphanedBlob = ingestErr.Orphaned
	}
	writeJSON(w, mapErrorToHTTPStatus(err), resp)
}

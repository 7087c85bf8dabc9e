package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

type uploadResponse struct {
	Document *domain.Document `json:"document"`
	Warning  string           `json:"warning,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type listingResponse struct {
	WorkspaceID string            `json:"workspace_id"`
	Documents   []domain.Document `json:"documents"`
	Settled     bool              `json:"settled"`
	FetchedAt   string            `json:"fetched_at"`
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)

	part, err := fileFormPart(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer part.Close()

	doc, err := rt.services.Ingestor.Ingest(r.Context(), ports.IngestRequest{
		OwnerID:     ownerFromContext(r.Context()),
		WorkspaceID: r.PathValue("workspaceID"),
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Body:        part,
	})
	if err != nil {
		if doc != nil && domain.IsKind(err, domain.ErrTriggerFailed) {
			writeJSON(w, http.StatusAccepted, uploadResponse{Document: doc, Warning: "trigger_failed", Error: err.Error()})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{Document: doc})
}

// fileFormPart streams the "file" part of a multipart body without buffering it.
func fileFormPart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read multipart", errors.New("multipart field 'file' is required"))
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read multipart", errors.New("multipart field 'file' is required"))
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read multipart", err)
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	listing, err := rt.services.Watcher.Snapshot(r.Context(), r.PathValue("workspaceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ownerListing(listing, ownerFromContext(r.Context())))
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.ownedDocument(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) retryTrigger(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.ownedDocument(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rt.services.Ingestor.RetryTrigger(r.Context(), doc.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "submitted", "document_id": doc.ID})
}

func (rt *Router) removeDocument(w http.ResponseWriter, r *http.Request) {
	result, err := rt.services.Remover.Remove(r.Context(), ownerFromContext(r.Context()), r.PathValue("documentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	rt.services.Watcher.Invalidate(result.Document.WorkspaceID)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) ownedDocument(r *http.Request) (*domain.Document, error) {
	id := r.PathValue("documentID")
	doc, err := rt.services.Documents.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerFromContext(r.Context()) {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return doc, nil
}

// ownerListing narrows a workspace listing to the caller's rows.
func ownerListing(listing domain.DocumentListing, ownerID string) listingResponse {
	docs := make([]domain.Document, 0, len(listing.Documents))
	for _, doc := range listing.Documents {
		if doc.OwnerID == ownerID {
			docs = append(docs, doc)
		}
	}
	filtered := domain.DocumentListing{WorkspaceID: listing.WorkspaceID, Documents: docs, FetchedAt: listing.FetchedAt}
	return listingResponse{
		WorkspaceID: listing.WorkspaceID,
		Documents:   docs,
		Settled:     filtered.Settled(),
		FetchedAt:   listing.FetchedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTemporary           = errors.New("temporary failure")
	ErrBlobWriteFailed     = errors.New("blob write failed")
	ErrMetadataWriteFailed = errors.New("metadata write failed")
	ErrOrphanedBlob        = errors.New("orphaned blob requires cleanup")
	ErrTriggerFailed       = errors.New("processing trigger failed")
	ErrPollFailed          = errors.New("document poll failed")
	ErrDeleteFailed        = errors.New("document delete failed")
	ErrPromptNotFound      = errors.New("deletion prompt not found")
	ErrBlobNotFound        = errors.New("blob not found")
	ErrBlobExists          = errors.New("blob already exists")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type IngestStep string

const (
	StepValidate      IngestStep = "validate"
	StepBlobWrite     IngestStep = "blob_write"
	StepMetadataWrite IngestStep = "metadata_write"
	StepTrigger       IngestStep = "trigger"
)

// IngestError reports the step at which an ingestion stopped, so callers can tell
// "nothing was created" from "blob exists but registration failed" from
// "registered but not yet processing".
type IngestError struct {
	Step       IngestStep
	Kind       error
	DocumentID string
	Path       string
	// Orphaned is set when compensation of a failed registration also failed.
	Orphaned      bool
	CompensateErr error
	Err           error
}

func (e *IngestError) Error() string {
	msg := fmt.Sprintf("ingest %s: %v: %v", e.Step, e.Kind, e.Err)
	if e.Orphaned {
		msg += fmt.Sprintf("; %v: path=%s: %v", ErrOrphanedBlob, e.Path, e.CompensateErr)
	}
	return msg
}

func (e *IngestError) Unwrap() []error {
	out := []error{e.Kind, e.Err}
	if e.Orphaned {
		out = append(out, ErrOrphanedBlob)
	}
	return out
}

// AsIngestError extracts the ingest failure report from a wrapped error chain.
func AsIngestError(err error) (*IngestError, bool) {
	var ingestErr *IngestError
	if errors.As(err, &ingestErr) {
		return ingestErr, true
	}
	return nil, false
}

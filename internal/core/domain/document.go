package domain

import (
	"strings"
	"time"
	"unicode"
)

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "PENDING"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is expected.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

type Document struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	OwnerID     string         `json:"owner_id"`
	Path        string         `json:"path"`
	Name        string         `json:"name"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DocumentListing is a full snapshot of a workspace, never a diff.
type DocumentListing struct {
	WorkspaceID string     `json:"workspace_id"`
	Documents   []Document `json:"documents"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// Settled reports whether every listed document reached a terminal status.
func (l DocumentListing) Settled() bool {
	for _, doc := range l.Documents {
		if !doc.Status.IsTerminal() {
			return false
		}
	}
	return true
}

type DocumentChunk struct {
	DocumentID  string `json:"document_id"`
	WorkspaceID string `json:"workspace_id"`
	OwnerID     string `json:"owner_id"`
	Seq         int    `json:"seq"`
	Page        int    `json:"page"`
	Content     string `json:"content"`
}

// SanitizeName turns whitespace runs into "_" and drops anything outside [A-Za-z0-9._-].
// Whitespace is the ECMAScript \s class, so keys match those produced by browser clients.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	inSpace := false
	for _, r := range name {
		if isNameSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isNameSpace differs from unicode.IsSpace on U+0085 (not space) and U+FEFF (space).
func isNameSpace(r rune) bool {
	switch r {
	case '\u0085':
		return false
	case '\ufeff':
		return true
	}
	return unicode.IsSpace(r)
}

// BlobKey is the storage key layout shared with the worker and the reconciler.
func BlobKey(ownerID, workspaceID, sanitizedName string) string {
	return ownerID + "/" + workspaceID + "/" + sanitizedName
}

// BlobPrefix is the key prefix holding every blob of one workspace.
func BlobPrefix(ownerID, workspaceID string) string {
	return ownerID + "/" + workspaceID + "/"
}

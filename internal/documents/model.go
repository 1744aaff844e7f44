package documents

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("documents: invalid document id")
	// ErrInvalidTitle indicates that a document title is empty or too long.
	ErrInvalidTitle = errors.New("documents: invalid title")
)

const (
	maxIdentifierLength = 190
	maxTitleLength      = 320
)

// DocumentID represents a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// Document models a persisted document and its replicated-state snapshot.
//
// Snapshot holds the opaque binary encoding produced by the client-side
// replicated state; the server stores and returns it without decoding.
// A nil Snapshot means the document has never been saved.
type Document struct {
	DocumentID       string `gorm:"column:document_id;primaryKey;size:190;not null"`
	ProjectID        string `gorm:"column:project_id;size:190;not null;index"`
	Title            string `gorm:"column:title;size:320;not null"`
	Snapshot         []byte `gorm:"column:snapshot;type:blob"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

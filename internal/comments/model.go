package comments

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidLineNumber indicates a line number below 1.
	ErrInvalidLineNumber = errors.New("comments: invalid line number")
	// ErrInvalidText indicates an empty or oversized comment body.
	ErrInvalidText = errors.New("comments: invalid text")
)

const defaultTextLimit = 4000

// Comment models a line-scoped review comment on a document.
type Comment struct {
	CommentID        string `gorm:"column:comment_id;primaryKey;size:190;not null"`
	DocumentID       string `gorm:"column:document_id;size:190;not null;index:idx_comments_document_line,priority:1"`
	AuthorID         string `gorm:"column:author_id;size:190;not null"`
	LineNumber       int    `gorm:"column:line_number;not null;index:idx_comments_document_line,priority:2"`
	Text             string `gorm:"column:text;type:text;not null"`
	Resolved         bool   `gorm:"column:resolved;not null;default:false"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_comments_document_line,priority:3"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

func validateLineNumber(lineNumber int) error {
	if lineNumber < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidLineNumber, lineNumber)
	}
	return nil
}

func validateText(text string, limit int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidText)
	}
	if limit <= 0 {
		limit = defaultTextLimit
	}
	if len(trimmed) > limit {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidText, limit)
	}
	return trimmed, nil
}

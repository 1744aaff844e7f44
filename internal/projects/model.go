package projects

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidProjectID indicates that a project identifier is empty or exceeds storage bounds.
	ErrInvalidProjectID = errors.New("projects: invalid project id")
	// ErrInvalidName indicates that a project name is empty or too long.
	ErrInvalidName = errors.New("projects: invalid name")
)

const (
	maxIdentifierLength = 190
	maxNameLength       = 320
)

// ProjectID represents a validated project identifier.
type ProjectID string

// NewProjectID validates raw input and returns a ProjectID.
func NewProjectID(rawInput string) (ProjectID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidProjectID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidProjectID, maxIdentifierLength)
	}
	return ProjectID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ProjectID) String() string {
	return string(id)
}

// Project models a persisted project owned by one account.
type Project struct {
	ProjectID        string `gorm:"column:project_id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index"`
	Name             string `gorm:"column:name;size:320;not null"`
	Description      string `gorm:"column:description;type:text;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Project) TableName() string {
	return "projects"
}

// Package documents is the persistence gateway for replicated document
// snapshots. Saves are last-write-wins at the storage layer: two processes
// saving the same document concurrently can silently lose the snapshot
// generated from the older base. That is an accepted property of the blind
// relay design; live edits travel between clients without touching storage.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the referenced document does not exist.
	ErrNotFound = errors.New("documents: not found")
	// ErrPayloadTooLarge indicates a snapshot exceeds the configured storage ceiling.
	ErrPayloadTooLarge = errors.New("documents: snapshot exceeds size ceiling")

	errMissingDatabase = errors.New("database handle is required")
)

const (
	// DefaultSnapshotLimitBytes caps stored snapshot size unless configured otherwise.
	DefaultSnapshotLimitBytes = 10 << 20

	opCreate       = "documents.create"
	opList         = "documents.list_by_project"
	opGet          = "documents.get"
	opSaveSnapshot = "documents.save_snapshot"
	opLoadSnapshot = "documents.load_snapshot"
)

// ServiceError carries a stable operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies required by the document service.
type ServiceConfig struct {
	Database           *gorm.DB
	Clock              func() time.Time
	Logger             *zap.Logger
	SnapshotLimitBytes int64
}

// Service manages document records and snapshot custody.
type Service struct {
	db            *gorm.DB
	clock         func() time.Time
	logger        *zap.Logger
	snapshotLimit int64
}

// NewService constructs the document service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opCreate, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.SnapshotLimitBytes
	if limit <= 0 {
		limit = DefaultSnapshotLimitBytes
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger, snapshotLimit: limit}, nil
}

// SnapshotLimitBytes reports the enforced snapshot size ceiling.
func (s *Service) SnapshotLimitBytes() int64 {
	return s.snapshotLimit
}

// Create stores a new document with no snapshot.
func (s *Service) Create(ctx context.Context, title, projectID string) (Document, error) {
	trimmedTitle := strings.TrimSpace(title)
	if trimmedTitle == "" || len(trimmedTitle) > maxTitleLength {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidTitle, title)
	}
	if strings.TrimSpace(projectID) == "" {
		return Document{}, newServiceError(opCreate, "missing_project_id", nil)
	}

	identifier, err := uuid.NewV7()
	if err != nil {
		return Document{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	document := Document{
		DocumentID:       identifier.String(),
		ProjectID:        projectID,
		Title:            trimmedTitle,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
		s.logger.Error("document create failed", zap.Error(err), zap.String("project_id", projectID))
		return Document{}, newServiceError(opCreate, "insert_failed", err)
	}
	return document, nil
}

// ListByProject returns all documents belonging to a project.
func (s *Service) ListByProject(ctx context.Context, projectID string) ([]Document, error) {
	var records []Document
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at_s ASC, document_id ASC").
		Find(&records).Error
	if err != nil {
		s.logger.Error("document list failed", zap.Error(err), zap.String("project_id", projectID))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return records, nil
}

// Get returns a single document including its stored snapshot.
func (s *Service) Get(ctx context.Context, documentID DocumentID) (Document, error) {
	var document Document
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID.String()).Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		s.logger.Error("document get failed", zap.Error(err), zap.String("document_id", documentID.String()))
		return Document{}, newServiceError(opGet, "query_failed", err)
	}
	return document, nil
}

// SaveSnapshot overwrites the stored snapshot for a document.
//
// The write is last-write-wins; callers supply the full binary encoding of
// their current replicated state and the previous value is replaced.
func (s *Service) SaveSnapshot(ctx context.Context, documentID DocumentID, snapshot []byte) error {
	if int64(len(snapshot)) > s.snapshotLimit {
		return fmt.Errorf("%w: %d bytes over %d byte limit", ErrPayloadTooLarge, len(snapshot), s.snapshotLimit)
	}

	result := s.db.WithContext(ctx).Model(&Document{}).
		Where("document_id = ?", documentID.String()).
		Updates(map[string]interface{}{
			"snapshot":     snapshot,
			"updated_at_s": s.clock().UTC().Unix(),
		})
	if result.Error != nil {
		s.logger.Error("snapshot save failed", zap.Error(result.Error), zap.String("document_id", documentID.String()))
		return newServiceError(opSaveSnapshot, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for a document.
//
// A document that exists but has never been saved yields (nil, false, nil);
// absence of a snapshot is not an error.
func (s *Service) LoadSnapshot(ctx context.Context, documentID DocumentID) ([]byte, bool, error) {
	document, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, false, err
	}
	if len(document.Snapshot) == 0 {
		return nil, false, nil
	}
	return document.Snapshot, true, nil
}

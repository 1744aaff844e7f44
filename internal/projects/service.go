package projects

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
	// ErrNotFound indicates the referenced project does not exist.
	ErrNotFound = errors.New("projects: not found")
	// ErrNotOwner indicates the caller does not own the referenced project.
	ErrNotOwner = errors.New("projects: not owned by caller")

	errMissingDatabase = errors.New("database handle is required")
)

// ServiceConfig describes the dependencies required for project management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages project records.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the project service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("projects: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Create stores a new project owned by the given account.
func (s *Service) Create(ctx context.Context, ownerID, name, description string) (Project, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" || len(trimmedName) > maxNameLength {
		return Project{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	identifier, err := uuid.NewV7()
	if err != nil {
		return Project{}, err
	}

	now := s.clock().UTC().Unix()
	project := Project{
		ProjectID:        identifier.String(),
		OwnerID:          ownerID,
		Name:             trimmedName,
		Description:      strings.TrimSpace(description),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		s.logger.Error("project create failed", zap.Error(err), zap.String("owner_id", ownerID))
		return Project{}, err
	}
	return project, nil
}

// ListByOwner returns all projects owned by the account, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Project, error) {
	var records []Project
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at_s DESC, project_id DESC").
		Find(&records).Error
	if err != nil {
		s.logger.Error("project list failed", zap.Error(err), zap.String("owner_id", ownerID))
		return nil, err
	}
	return records, nil
}

// Get returns a single project, enforcing ownership.
func (s *Service) Get(ctx context.Context, ownerID string, projectID ProjectID) (Project, error) {
	var project Project
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID.String()).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	if project.OwnerID != ownerID {
		return Project{}, ErrNotOwner
	}
	return project, nil
}

// Delete removes a project, enforcing ownership.
func (s *Service) Delete(ctx context.Context, ownerID string, projectID ProjectID) error {
	if _, err := s.Get(ctx, ownerID, projectID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("project_id = ?", projectID.String()).
		Delete(&Project{}).Error
}

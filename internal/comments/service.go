package comments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("database handle is required")

// ServiceConfig describes the dependencies required by the comment service.
type ServiceConfig struct {
	Database  *gorm.DB
	Clock     func() time.Time
	Logger    *zap.Logger
	TextLimit int
}

// Service manages line-scoped review comments, independent of document sync.
type Service struct {
	db        *gorm.DB
	clock     func() time.Time
	logger    *zap.Logger
	textLimit int
}

// NewService constructs the comment service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("comments: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.TextLimit
	if limit <= 0 {
		limit = defaultTextLimit
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger, textLimit: limit}, nil
}

// Create stores a new comment on a 1-based document line.
func (s *Service) Create(ctx context.Context, documentID, authorID string, lineNumber int, text string) (Comment, error) {
	if err := validateLineNumber(lineNumber); err != nil {
		return Comment{}, err
	}
	body, err := validateText(text, s.textLimit)
	if err != nil {
		return Comment{}, err
	}

	identifier, err := uuid.NewV7()
	if err != nil {
		return Comment{}, err
	}

	comment := Comment{
		CommentID:        identifier.String(),
		DocumentID:       documentID,
		AuthorID:         authorID,
		LineNumber:       lineNumber,
		Text:             body,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logger.Error("comment create failed", zap.Error(err), zap.String("document_id", documentID))
		return Comment{}, err
	}
	return comment, nil
}

// ListByDocument returns comments sorted by line number, then creation time.
func (s *Service) ListByDocument(ctx context.Context, documentID string) ([]Comment, error) {
	var records []Comment
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("line_number ASC, created_at_s ASC, comment_id ASC").
		Find(&records).Error
	if err != nil {
		s.logger.Error("comment list failed", zap.Error(err), zap.String("document_id", documentID))
		return nil, err
	}
	return records, nil
}

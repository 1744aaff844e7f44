package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codereef-labs/codereef/backend/internal/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates an account already exists for the email address.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates the email/password pair did not match an account.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrAccountNotFound indicates no account exists for the given identifier.
	ErrAccountNotFound = errors.New("users: account not found")

	errMissingDatabase = errors.New("database handle is required")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages locally registered accounts.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: %w", errMissingDatabase)
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

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, displayName, password string) (Account, error) {
	normalizedEmail, err := normalizeEmail(email)
	if err != nil {
		return Account{}, err
	}
	normalizedName, err := normalizeDisplayName(displayName)
	if err != nil {
		return Account{}, err
	}
	if err := validatePassword(password); err != nil {
		return Account{}, err
	}

	var existing Account
	err = s.db.WithContext(ctx).Where("email = ?", normalizedEmail).Take(&existing).Error
	if err == nil {
		return Account{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("account lookup failed", zap.Error(err))
		return Account{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return Account{}, err
	}

	identifier, err := uuid.NewV7()
	if err != nil {
		return Account{}, err
	}

	account := Account{
		UserID:           identifier.String(),
		Email:            normalizedEmail,
		DisplayName:      normalizedName,
		PasswordHash:     hash,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		s.logger.Error("account create failed", zap.Error(err))
		return Account{}, err
	}
	return account, nil
}

// Authenticate verifies an email/password pair and returns the matching account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	normalizedEmail, err := normalizeEmail(email)
	if err != nil {
		return Account{}, ErrInvalidCredentials
	}

	var account Account
	err = s.db.WithContext(ctx).Where("email = ?", normalizedEmail).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("account lookup failed", zap.Error(err))
		return Account{}, err
	}

	if err := auth.CheckPassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	return account, nil
}

// Get returns the account for a user identifier.
func (s *Service) Get(ctx context.Context, userID string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

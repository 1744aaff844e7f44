package users

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidEmail indicates that an email address is empty or malformed.
	ErrInvalidEmail = errors.New("users: invalid email")
	// ErrInvalidDisplayName indicates that a display name is empty or too long.
	ErrInvalidDisplayName = errors.New("users: invalid display name")
	// ErrWeakPassword indicates that a password does not meet the minimum length.
	ErrWeakPassword = errors.New("users: password too short")
)

const minPasswordLength = 8

// Account models a locally registered user.
type Account struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email            string `gorm:"column:email;size:320;not null;uniqueIndex"`
	DisplayName      string `gorm:"column:display_name;size:320;not null"`
	PasswordHash     string `gorm:"column:password_hash;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Account) TableName() string {
	return "accounts"
}

func normalizeEmail(rawInput string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" || !strings.Contains(trimmed, "@") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, rawInput)
	}
	if len(trimmed) > 320 {
		return "", fmt.Errorf("%w: exceeds 320 characters", ErrInvalidEmail)
	}
	return trimmed, nil
}

func normalizeDisplayName(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDisplayName)
	}
	if len(trimmed) > 320 {
		return "", fmt.Errorf("%w: exceeds 320 characters", ErrInvalidDisplayName)
	}
	return trimmed, nil
}

func validatePassword(plaintext string) error {
	if len(plaintext) < minPasswordLength {
		return fmt.Errorf("%w: fewer than %d characters", ErrWeakPassword, minPasswordLength)
	}
	return nil
}

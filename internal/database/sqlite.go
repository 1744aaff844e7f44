package database

import (
	"fmt"

	"github.com/codereef-labs/codereef/backend/internal/comments"
	"github.com/codereef-labs/codereef/backend/internal/documents"
	"github.com/codereef-labs/codereef/backend/internal/projects"
	"github.com/codereef-labs/codereef/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.Account{},
		&projects.Project{},
		&documents.Document{},
		&comments.Comment{},
	); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

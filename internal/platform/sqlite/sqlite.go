package sqlite

import (
	"context"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"syllabussync/internal/platform/database"
)

// New opens a SQLite file (or ":memory:") through the pure-Go driver.
// A single connection is used so an in-memory database is shared by every
// query and writes never contend.
func New(ctx context.Context, path string) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		path = ":memory:"
	}
	pool := database.Pool{MaxIdleConns: 1, MaxOpenConns: 1}
	return database.Open(ctx, "sqlite", sqlite.Open(path), pool, true)
}

// NewMigrated opens path and creates the schema. Used by the offline CLI
// and by tests.
func NewMigrated(ctx context.Context, path string) (*gorm.DB, error) {
	db, err := New(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

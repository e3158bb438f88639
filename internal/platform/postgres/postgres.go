package postgres

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"syllabussync/internal/platform/database"
)

// New connects to Postgres and makes sure the pgvector extension exists
// before any table with a vector column is migrated.
func New(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := database.Open(ctx, "postgres", postgres.Open(dsn), database.DefaultPool, false)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("create vector extension failed: %w", err)
	}
	return db, nil
}

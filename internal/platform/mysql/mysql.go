package mysql

import (
	"context"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"syllabussync/internal/platform/database"
)

// New connects to MySQL. Vectors are stored as text there and ranked by
// repository.ScanSearcher.
func New(ctx context.Context, dsn string) (*gorm.DB, error) {
	return database.Open(ctx, "mysql", mysql.Open(dsn), database.DefaultPool, false)
}

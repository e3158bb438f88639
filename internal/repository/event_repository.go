package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"syllabussync/internal/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// ListByVersion returns the version's events ordered by due time.
func (r *EventRepository) ListByVersion(ctx context.Context, versionID uint) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("document_version_id = ?", versionID).
		Order("due_at ASC").Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list events failed: %w", err)
	}
	return events, nil
}

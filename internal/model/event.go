package model

import "time"

// Event is a dated item found on a page. Source offsets are optional and
// left nil by the line heuristic.
type Event struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	DocumentVersionID uint      `gorm:"not null;index" json:"document_version_id"`
	Title             string    `gorm:"size:512;not null" json:"title"`
	DueAt             time.Time `gorm:"not null" json:"due_at"`
	PageNumber        int       `json:"page_number"`
	SourceStartOffset *int      `json:"source_start_offset,omitempty"`
	SourceEndOffset   *int      `json:"source_end_offset,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

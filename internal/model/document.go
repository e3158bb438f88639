package model

import "time"

type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Title      string    `gorm:"size:512;not null" json:"title"`
	StorageURI string    `gorm:"size:1024;not null" json:"storage_uri"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentVersion is one immutable ingested rendition of a Document.
// Pages is set once by the extract stage.
type DocumentVersion struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	DocumentID    uint      `gorm:"not null;uniqueIndex:uq_document_version_hash,priority:1" json:"document_id"`
	ContentSHA256 string    `gorm:"column:content_sha256;size:64;not null;uniqueIndex:uq_document_version_hash,priority:2" json:"content_sha256"`
	Pages         int       `gorm:"not null;default:0" json:"pages"`
	CreatedAt     time.Time `json:"created_at"`
}

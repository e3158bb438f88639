package model

// Chunk is a window over one page's text. StartOffset and EndOffset count
// runes of Page.Text, not of Chunk.Text.
type Chunk struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	DocumentVersionID uint   `gorm:"not null;index:ix_chunks_docver_page,priority:1" json:"document_version_id"`
	PageNumber        int    `gorm:"not null;index:ix_chunks_docver_page,priority:2" json:"page_number"`
	Text              string `gorm:"type:text;not null" json:"text"`
	StartOffset       int    `gorm:"not null" json:"start_offset"`
	EndOffset         int    `gorm:"not null" json:"end_offset"`
}

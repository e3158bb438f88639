package model

import "gorm.io/datatypes"

type Page struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	DocumentVersionID uint           `gorm:"not null;uniqueIndex:ix_pages_docver_page,priority:1" json:"document_version_id"`
	PageNumber        int            `gorm:"not null;uniqueIndex:ix_pages_docver_page,priority:2" json:"page_number"`
	Text              string         `gorm:"type:text;not null" json:"text"`
	LayoutMeta        datatypes.JSON `json:"layout_meta,omitempty"`
}

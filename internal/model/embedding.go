package model

import (
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Embedding holds one vector per (chunk, model). Writes are upserts.
type Embedding struct {
	ChunkID uint   `gorm:"primaryKey;autoIncrement:false" json:"chunk_id"`
	Model   string `gorm:"primaryKey;size:128" json:"model"`
	Dim     int    `gorm:"not null" json:"dim"`
	Vector  Vector `gorm:"not null" json:"-"`
}

// Vector stores an embedding as a pgvector column on Postgres and as its
// text form ("[0.1,0.2]") on other dialects.
type Vector struct {
	pgvector.Vector
}

func NewVector(values []float32) Vector {
	return Vector{Vector: pgvector.NewVector(values)}
}

func (Vector) GormDataType() string {
	return "vector"
}

func (Vector) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "vector"
	}
	return "text"
}

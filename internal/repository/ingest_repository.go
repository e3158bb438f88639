package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"syllabussync/internal/model"
)

const insertBatchSize = 200

// IngestRepository holds the writes of each pipeline stage. Every write
// method commits in a single transaction.
type IngestRepository struct {
	db *gorm.DB
}

func NewIngestRepository(db *gorm.DB) *IngestRepository {
	return &IngestRepository{db: db}
}

type StageCounts struct {
	Pages      int64 `json:"pages"`
	Chunks     int64 `json:"chunks"`
	Embeddings int64 `json:"embeddings"`
	Events     int64 `json:"events"`
}

// ReplacePages swaps the version's pages for texts, numbered from 1, and
// records the page count on the version.
func (r *IngestRepository) ReplacePages(ctx context.Context, versionID uint, texts []string) error {
	pages := make([]model.Page, len(texts))
	for i, text := range texts {
		pages[i] = model.Page{DocumentVersionID: versionID, PageNumber: i + 1, Text: text}
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_version_id = ?", versionID).Delete(&model.Page{}).Error; err != nil {
			return err
		}
		if len(pages) > 0 {
			if err := tx.CreateInBatches(&pages, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.DocumentVersion{}).Where("id = ?", versionID).Update("pages", len(pages)).Error
	})
	if err != nil {
		return fmt.Errorf("replace pages failed: %w", err)
	}
	return nil
}

func (r *IngestRepository) ListPages(ctx context.Context, versionID uint) ([]model.Page, error) {
	var pages []model.Page
	if err := r.db.WithContext(ctx).Where("document_version_id = ?", versionID).Order("page_number ASC").Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("list pages failed: %w", err)
	}
	return pages, nil
}

// ReplaceChunks clears the version's chunks, and their embeddings, before
// inserting chunks. Re-running it never duplicates.
func (r *IngestRepository) ReplaceChunks(ctx context.Context, versionID uint, chunks []model.Chunk) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChunks(tx, versionID); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(&chunks, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("replace chunks failed: %w", err)
	}
	return nil
}

func (r *IngestRepository) ListChunks(ctx context.Context, versionID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).Where("document_version_id = ?", versionID).Order("id ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}
	return chunks, nil
}

// UpsertEmbeddings writes one row per (chunk, model), overwriting the
// vector of an existing row. Rows whose chunk was deleted since it was read
// are skipped, and the number of rows written is returned.
func (r *IngestRepository) UpsertEmbeddings(ctx context.Context, embeddings []model.Embedding) (int, error) {
	if len(embeddings) == 0 {
		return 0, nil
	}
	ids := make([]uint, len(embeddings))
	for i, e := range embeddings {
		ids[i] = e.ChunkID
	}

	var written int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&model.Chunk{}).Where("id IN ?", ids)
		// blocks behind a concurrent ReplaceChunks until it commits
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "SHARE"})
		}
		var live []uint
		if err := q.Pluck("id", &live).Error; err != nil {
			return err
		}
		keep := make(map[uint]struct{}, len(live))
		for _, id := range live {
			keep[id] = struct{}{}
		}
		rows := make([]model.Embedding, 0, len(embeddings))
		for _, e := range embeddings {
			if _, ok := keep[e.ChunkID]; ok {
				rows = append(rows, e)
			}
		}
		if len(rows) == 0 {
			return nil
		}
		written = len(rows)
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}, {Name: "model"}},
			DoUpdates: clause.AssignmentColumns([]string{"dim", "vector"}),
		}).CreateInBatches(&rows, insertBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("upsert embeddings failed: %w", err)
	}
	return written, nil
}

// AppendEvents inserts events as-is. Re-runs add rows.
func (r *IngestRepository) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&events, insertBatchSize).Error; err != nil {
		return fmt.Errorf("append events failed: %w", err)
	}
	return nil
}

func (r *IngestRepository) Counts(ctx context.Context, versionID uint) (*StageCounts, error) {
	db := r.db.WithContext(ctx)
	var counts StageCounts
	if err := db.Model(&model.Page{}).Where("document_version_id = ?", versionID).Count(&counts.Pages).Error; err != nil {
		return nil, fmt.Errorf("count pages failed: %w", err)
	}
	if err := db.Model(&model.Chunk{}).Where("document_version_id = ?", versionID).Count(&counts.Chunks).Error; err != nil {
		return nil, fmt.Errorf("count chunks failed: %w", err)
	}
	chunkIDs := db.Model(&model.Chunk{}).Select("id").Where("document_version_id = ?", versionID)
	if err := db.Model(&model.Embedding{}).Where("chunk_id IN (?)", chunkIDs).Count(&counts.Embeddings).Error; err != nil {
		return nil, fmt.Errorf("count embeddings failed: %w", err)
	}
	if err := db.Model(&model.Event{}).Where("document_version_id = ?", versionID).Count(&counts.Events).Error; err != nil {
		return nil, fmt.Errorf("count events failed: %w", err)
	}
	return &counts, nil
}

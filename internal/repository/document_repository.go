package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"syllabussync/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// VersionRef names the version a query should search for one document.
type VersionRef struct {
	DocumentID uint
	Title      string
	VersionID  uint
}

// CreateWithVersion inserts a document and its first version together.
func (r *DocumentRepository) CreateWithVersion(ctx context.Context, doc *model.Document, version *model.DocumentVersion) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		version.DocumentID = doc.ID
		return tx.Create(version).Error
	})
	if err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// ListByUserID returns the user's documents, newest first. A zero userID
// lists every document.
func (r *DocumentRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Document, error) {
	q := r.db.WithContext(ctx)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var docs []model.Document
	if err := q.Order("created_at DESC").Order("id DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) GetVersion(ctx context.Context, id uint) (*model.DocumentVersion, error) {
	var version model.DocumentVersion
	if err := r.db.WithContext(ctx).First(&version, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document version failed: %w", err)
	}
	return &version, nil
}

func (r *DocumentRepository) ListVersions(ctx context.Context, documentID uint) ([]model.DocumentVersion, error) {
	var versions []model.DocumentVersion
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("id ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("list document versions failed: %w", err)
	}
	return versions, nil
}

// LatestVersions resolves the newest version of each given document.
// Documents without versions are skipped. Order follows docs.
func (r *DocumentRepository) LatestVersions(ctx context.Context, docs []model.Document) ([]VersionRef, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	ids := make([]uint, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	var rows []struct {
		DocumentID uint
		VersionID  uint
	}
	err := r.db.WithContext(ctx).
		Model(&model.DocumentVersion{}).
		Select("document_id, MAX(id) AS version_id").
		Where("document_id IN ?", ids).
		Group("document_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query latest versions failed: %w", err)
	}

	latest := make(map[uint]uint, len(rows))
	for _, row := range rows {
		latest[row.DocumentID] = row.VersionID
	}
	refs := make([]VersionRef, 0, len(rows))
	for _, d := range docs {
		if v, ok := latest[d.ID]; ok {
			refs = append(refs, VersionRef{DocumentID: d.ID, Title: d.Title, VersionID: v})
		}
	}
	return refs, nil
}

// DeleteVersion removes a version with its events, embeddings, chunks
// and pages. Reports false when the version does not exist.
func (r *DocumentRepository) DeleteVersion(ctx context.Context, versionID uint) (bool, error) {
	found := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_version_id = ?", versionID).Delete(&model.Event{}).Error; err != nil {
			return err
		}
		if err := deleteChunks(tx, versionID); err != nil {
			return err
		}
		if err := tx.Where("document_version_id = ?", versionID).Delete(&model.Page{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.DocumentVersion{}, versionID)
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete document version failed: %w", err)
	}
	return found, nil
}

// deleteChunks drops a version's chunks and every embedding of them.
func deleteChunks(tx *gorm.DB, versionID uint) error {
	chunkIDs := tx.Model(&model.Chunk{}).Select("id").Where("document_version_id = ?", versionID)
	if err := tx.Where("chunk_id IN (?)", chunkIDs).Delete(&model.Embedding{}).Error; err != nil {
		return err
	}
	return tx.Where("document_version_id = ?", versionID).Delete(&model.Chunk{}).Error
}

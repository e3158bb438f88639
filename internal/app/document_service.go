package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"syllabussync/internal/model"
	"syllabussync/internal/repository"
)

type VersionView struct {
	model.DocumentVersion
	State  string                  `json:"state"`
	Counts *repository.StageCounts `json:"counts"`
}

type DocumentService struct {
	docs   *repository.DocumentRepository
	ingest *IngestService
	logger *log.Logger
}

func NewDocumentService(docs *repository.DocumentRepository, ingest *IngestService, logger *log.Logger) *DocumentService {
	return &DocumentService{docs: docs, ingest: ingest, logger: logger}
}

// List returns the user's documents, newest first. Zero lists everything.
func (s *DocumentService) List(ctx context.Context, userID uint) ([]model.Document, error) {
	return s.docs.ListByUserID(ctx, userID)
}

// Versions lists a document's versions, oldest first, each with its
// pipeline progress.
func (s *DocumentService) Versions(ctx context.Context, documentID uint) ([]VersionView, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	versions, err := s.docs.ListVersions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	views := make([]VersionView, 0, len(versions))
	for _, v := range versions {
		status, err := s.ingest.Status(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, VersionView{DocumentVersion: v, State: status.State, Counts: status.Counts})
	}
	return views, nil
}

func (s *DocumentService) DeleteVersion(ctx context.Context, versionID uint) error {
	found, err := s.docs.DeleteVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %d", ErrVersionNotFound, versionID)
	}
	s.logger.Info("document version deleted", "version_id", versionID)
	return nil
}

// RequeueStage schedules one stage of an existing version again.
func (s *DocumentService) RequeueStage(ctx context.Context, versionID uint, stage string) error {
	if err := s.ingest.Enqueue(ctx, versionID, stage); err != nil {
		return err
	}
	s.logger.Info("stage requeued", "version_id", versionID, "stage", stage)
	return nil
}

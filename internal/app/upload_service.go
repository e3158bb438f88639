package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"syllabussync/internal/model"
	"syllabussync/internal/pkg/locator"
	"syllabussync/internal/platform/objectstore"
	"syllabussync/internal/repository"
)

const (
	defaultUploadMaxBytes = 50 << 20
	defaultPresignExpiry  = 10 * time.Minute
)

// ObjectStore is the blob storage the upload flow needs.
type ObjectStore interface {
	Bucket() string
	EnsureBucket(ctx context.Context) error
	PresignPost(ctx context.Context, key, contentType string, maxBytes int64, expiry time.Duration) (*objectstore.PresignedPost, error)
	Open(ctx context.Context, uri string) (io.ReadCloser, int64, error)
}

type UploadOptions struct {
	MaxBytes      int64
	PresignExpiry time.Duration
}

type PresignInput struct {
	Filename    string
	ContentType string
}

type PresignResult struct {
	URL        string            `json:"url"`
	Fields     map[string]string `json:"fields"`
	StorageURI string            `json:"storage_uri"`
}

type NotifyInput struct {
	UserID        uint
	Title         string
	StorageURI    string
	ContentSHA256 string
}

type NotifyResult struct {
	DocumentID        uint `json:"document_id"`
	DocumentVersionID uint `json:"document_version_id"`
	JobEnqueued       bool `json:"job_enqueued"`
}

type UploadService struct {
	store  ObjectStore
	docs   *repository.DocumentRepository
	queue  StageQueue
	opts   UploadOptions
	logger *log.Logger
	now    func() time.Time
}

func NewUploadService(store ObjectStore, docs *repository.DocumentRepository, queue StageQueue, opts UploadOptions, logger *log.Logger) *UploadService {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultUploadMaxBytes
	}
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = defaultPresignExpiry
	}
	return &UploadService{store: store, docs: docs, queue: queue, opts: opts, logger: logger, now: time.Now}
}

// Presign returns a browser upload form for a new object and the s3://
// URI to pass to Notify afterwards.
func (s *UploadService) Presign(ctx context.Context, in PresignInput) (*PresignResult, error) {
	filename := strings.TrimSpace(in.Filename)
	contentType := strings.TrimSpace(in.ContentType)
	if filename == "" || contentType == "" {
		return nil, fmt.Errorf("%w: filename and content_type are required", ErrInvalidInput)
	}

	if err := s.store.EnsureBucket(ctx); err != nil {
		s.logger.Warn("ensure bucket failed", "bucket", s.store.Bucket(), "err", err)
	}

	key := StorageKey(s.now(), filename)
	post, err := s.store.PresignPost(ctx, key, contentType, s.opts.MaxBytes, s.opts.PresignExpiry)
	if err != nil {
		return nil, err
	}
	return &PresignResult{URL: post.URL, Fields: post.Fields, StorageURI: locator.S3(s.store.Bucket(), key)}, nil
}

// Notify registers an uploaded object as a new document and queues its
// extraction. The version row is committed before the job is published.
func (s *UploadService) Notify(ctx context.Context, in NotifyInput) (*NotifyResult, error) {
	title := strings.TrimSpace(in.Title)
	uri := strings.TrimSpace(in.StorageURI)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.UserID == 0 {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if _, err := locator.Parse(uri); err != nil {
		return nil, err
	}

	digest := strings.ToLower(strings.TrimSpace(in.ContentSHA256))
	if digest == "" {
		digest = "pending:" + uuid.NewString()
	}

	doc := &model.Document{UserID: in.UserID, Title: title, StorageURI: uri}
	version := &model.DocumentVersion{ContentSHA256: digest}
	if err := s.docs.CreateWithVersion(ctx, doc, version); err != nil {
		return nil, err
	}

	res := &NotifyResult{DocumentID: doc.ID, DocumentVersionID: version.ID}
	job := model.StageJob{VersionID: version.ID, Stage: model.StageExtract, Locator: uri}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error("enqueue extract failed", "version_id", version.ID, "err", err)
		return res, nil
	}
	res.JobEnqueued = true
	s.logger.Info("document registered", "document_id", doc.ID, "version_id", version.ID, "storage_uri", uri)
	return res, nil
}

// Preview opens the stored bytes of a document for streaming.
func (s *UploadService) Preview(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if _, err := locator.Parse(uri); err != nil {
		return nil, 0, err
	}
	return s.store.Open(ctx, uri)
}

// StorageKey is uploads/<utc timestamp>-<digest>/<base name>.
func StorageKey(now time.Time, filename string) string {
	ts := now.UTC().Format("20060102150405")
	sum := sha256.Sum256([]byte(ts + ":" + filename))
	return fmt.Sprintf("uploads/%s-%s/%s", ts, hex.EncodeToString(sum[:])[:16], path.Base(strings.ReplaceAll(filename, "\\", "/")))
}

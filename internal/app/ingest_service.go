package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"syllabussync/internal/ai"
	"syllabussync/internal/model"
	"syllabussync/internal/pkg/chunker"
	"syllabussync/internal/pkg/locator"
	"syllabussync/internal/repository"
)

const defaultEventTitleMax = 200

type StageQueue interface {
	Enqueue(ctx context.Context, job model.StageJob) error
}

type BlobFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

type PageExtractor interface {
	ExtractPages(data []byte) ([]string, error)
}

type DateFinder interface {
	Find(line string) (time.Time, bool)
}

type IngestOptions struct {
	ChunkMaxLen   int
	ChunkOverlap  int
	EventTitleMax int
	// StageTimeout bounds each collaborator call (fetch, extract, embed).
	StageTimeout time.Duration
}

type IngestService struct {
	docs      *repository.DocumentRepository
	ingest    *repository.IngestRepository
	blobs     BlobFetcher
	extractor PageExtractor
	embedder  ai.Embedder
	dates     DateFinder
	queue     StageQueue
	opts      IngestOptions
	logger    *log.Logger
}

type StageResult struct {
	Stage     string   `json:"stage"`
	VersionID uint     `json:"version_id"`
	Count     int      `json:"count"`
	Model     string   `json:"model,omitempty"`
	Next      []string `json:"next,omitempty"`
}

type VersionStatus struct {
	Version *model.DocumentVersion  `json:"version"`
	State   string                  `json:"state"`
	Counts  *repository.StageCounts `json:"counts"`
}

func NewIngestService(
	docs *repository.DocumentRepository,
	ingest *repository.IngestRepository,
	blobs BlobFetcher,
	extractor PageExtractor,
	embedder ai.Embedder,
	dates DateFinder,
	queue StageQueue,
	opts IngestOptions,
	logger *log.Logger,
) *IngestService {
	if opts.EventTitleMax <= 0 {
		opts.EventTitleMax = defaultEventTitleMax
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 30 * time.Second
	}
	return &IngestService{
		docs:      docs,
		ingest:    ingest,
		blobs:     blobs,
		extractor: extractor,
		embedder:  embedder,
		dates:     dates,
		queue:     queue,
		opts:      opts,
		logger:    logger,
	}
}

// RunStage runs the named stage for job.VersionID. Every stage can be
// re-run for the same version; the next stages are enqueued only after
// this stage's writes are committed.
func (s *IngestService) RunStage(ctx context.Context, job model.StageJob) (*StageResult, error) {
	started := time.Now()
	var (
		res *StageResult
		err error
	)
	switch job.Stage {
	case model.StageExtract:
		res, err = s.ExtractPages(ctx, job.VersionID, job.Locator)
	case model.StageChunk:
		res, err = s.ChunkPages(ctx, job.VersionID)
	case model.StageEmbed:
		res, err = s.EmbedChunks(ctx, job.VersionID)
	case model.StageEvents:
		res, err = s.ExtractEvents(ctx, job.VersionID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, job.Stage)
	}
	if err != nil {
		s.logger.Error("stage failed",
			"version_id", job.VersionID, "stage", job.Stage, "attempt", job.Attempt,
			"elapsed", time.Since(started), "err", err)
		return nil, err
	}
	s.logger.Info("stage finished",
		"version_id", job.VersionID, "stage", job.Stage, "count", res.Count,
		"next", res.Next, "elapsed", time.Since(started))
	return res, nil
}

// ExtractPages reads the raw document, stores one page per extracted text
// and records the page count. An empty uri falls back to the document's
// storage URI.
func (s *IngestService) ExtractPages(ctx context.Context, versionID uint, uri string) (*StageResult, error) {
	version, err := s.requireVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(uri) == "" {
		doc, err := s.docs.GetByID(ctx, version.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, fmt.Errorf("%w: document %d", ErrDocumentNotFound, version.DocumentID)
		}
		uri = doc.StorageURI
	}
	if _, err := locator.Parse(uri); err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.StageTimeout)
	data, err := s.blobs.Fetch(fetchCtx, uri)
	cancel()
	if err != nil {
		if errors.Is(err, locator.ErrInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrExtraction, uri, err)
	}

	pages, err := s.extractor.ExtractPages(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	if err := s.ingest.ReplacePages(ctx, versionID, pages); err != nil {
		return nil, err
	}

	res := &StageResult{Stage: model.StageExtract, VersionID: versionID, Count: len(pages)}
	if err := s.enqueue(ctx, res, model.StageChunk); err != nil {
		return nil, err
	}
	return res, nil
}

// ChunkPages rebuilds the version's chunks from its pages. Existing chunks
// and their embeddings are cleared first.
func (s *IngestService) ChunkPages(ctx context.Context, versionID uint) (*StageResult, error) {
	if _, err := s.requireVersion(ctx, versionID); err != nil {
		return nil, err
	}
	pages, err := s.ingest.ListPages(ctx, versionID)
	if err != nil {
		return nil, err
	}

	var chunks []model.Chunk
	for _, p := range pages {
		for _, w := range chunker.Split(p.Text, s.opts.ChunkMaxLen, s.opts.ChunkOverlap) {
			chunks = append(chunks, model.Chunk{
				DocumentVersionID: versionID,
				PageNumber:        p.PageNumber,
				Text:              w.Text,
				StartOffset:       w.Start,
				EndOffset:         w.End,
			})
		}
	}
	if err := s.ingest.ReplaceChunks(ctx, versionID, chunks); err != nil {
		return nil, err
	}

	res := &StageResult{Stage: model.StageChunk, VersionID: versionID, Count: len(chunks)}
	if err := s.enqueue(ctx, res, model.StageEmbed, model.StageEvents); err != nil {
		return nil, err
	}
	return res, nil
}

// EmbedChunks embeds every chunk in one batch and upserts the vectors.
func (s *IngestService) EmbedChunks(ctx context.Context, versionID uint) (*StageResult, error) {
	if _, err := s.requireVersion(ctx, versionID); err != nil {
		return nil, err
	}
	chunks, err := s.ingest.ListChunks(ctx, versionID)
	if err != nil {
		return nil, err
	}
	res := &StageResult{Stage: model.StageEmbed, VersionID: versionID}
	if len(chunks) == 0 {
		return res, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embedCtx, cancel := context.WithTimeout(ctx, s.opts.StageTimeout)
	batch, err := s.embedder.Embed(embedCtx, texts)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embed chunks failed: %w", err)
	}
	if len(batch.Vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingProvider, len(batch.Vectors), len(chunks))
	}

	rows := make([]model.Embedding, len(chunks))
	for i, c := range chunks {
		rows[i] = model.Embedding{
			ChunkID: c.ID,
			Model:   batch.Model,
			Dim:     batch.Dimension,
			Vector:  model.NewVector(batch.Vectors[i]),
		}
	}
	written, err := s.ingest.UpsertEmbeddings(ctx, rows)
	if err != nil {
		return nil, err
	}
	if written < len(rows) {
		s.logger.Warn("chunks replaced during embedding, stale vectors skipped",
			"version_id", versionID, "skipped", len(rows)-written)
	}
	res.Count = written
	res.Model = batch.Model
	return res, nil
}

// ExtractEvents scans page lines mentioning "exam" or "due" for a date.
// Events are appended; re-running the stage adds duplicates.
func (s *IngestService) ExtractEvents(ctx context.Context, versionID uint) (*StageResult, error) {
	if _, err := s.requireVersion(ctx, versionID); err != nil {
		return nil, err
	}
	pages, err := s.ingest.ListPages(ctx, versionID)
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for _, p := range pages {
		for _, line := range splitLines(p.Text) {
			if !IsEventCandidate(line) {
				continue
			}
			due, ok := s.dates.Find(line)
			if !ok {
				continue
			}
			events = append(events, model.Event{
				DocumentVersionID: versionID,
				Title:             truncateRunes(strings.TrimSpace(line), s.opts.EventTitleMax),
				DueAt:             due.UTC(),
				PageNumber:        p.PageNumber,
			})
		}
	}
	if err := s.ingest.AppendEvents(ctx, events); err != nil {
		return nil, err
	}
	return &StageResult{Stage: model.StageEvents, VersionID: versionID, Count: len(events)}, nil
}

func (s *IngestService) Status(ctx context.Context, versionID uint) (*VersionStatus, error) {
	version, err := s.requireVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	counts, err := s.ingest.Counts(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return &VersionStatus{Version: version, State: pipelineState(counts), Counts: counts}, nil
}

// Enqueue schedules stage for a version from outside the pipeline, e.g.
// a manual re-run.
func (s *IngestService) Enqueue(ctx context.Context, versionID uint, stage string) error {
	if !model.ValidStage(stage) {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if _, err := s.requireVersion(ctx, versionID); err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, model.StageJob{VersionID: versionID, Stage: stage}); err != nil {
		return fmt.Errorf("%w: %v", ErrEnqueue, err)
	}
	return nil
}

func (s *IngestService) requireVersion(ctx context.Context, versionID uint) (*model.DocumentVersion, error) {
	version, err := s.docs.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, versionID)
	}
	return version, nil
}

func (s *IngestService) enqueue(ctx context.Context, res *StageResult, stages ...string) error {
	for _, stage := range stages {
		if err := s.queue.Enqueue(ctx, model.StageJob{VersionID: res.VersionID, Stage: stage}); err != nil {
			return fmt.Errorf("%w: %s after %s: %v", ErrEnqueue, stage, res.Stage, err)
		}
		res.Next = append(res.Next, stage)
	}
	return nil
}

// IsEventCandidate reports whether a line mentions "exam" or "due" in any
// case.
func IsEventCandidate(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "exam") || strings.Contains(lower, "due")
}

// Version states derived from row counts. The events stage is not
// reflected: zero events is a valid result, so an embedded version may
// still have its events run pending.
const (
	StateCreated   = "created"
	StateExtracted = "extracted"
	StateChunked   = "chunked"
	StateEmbedded  = "embedded"
)

func pipelineState(c *repository.StageCounts) string {
	switch {
	case c.Pages == 0:
		return StateCreated
	case c.Chunks == 0:
		return StateExtracted
	case c.Embeddings < c.Chunks:
		return StateChunked
	default:
		return StateEmbedded
	}
}

// splitLines breaks on \n, \r\n, bare \r and the other vertical
// separators PDF text can carry. Empty lines are dropped.
func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '\n', '\r', '\v', '\f', '\u0085', '\u2028', '\u2029':
			return true
		}
		return false
	})
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

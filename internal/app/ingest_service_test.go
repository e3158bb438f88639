package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabussync/internal/ai"
	"syllabussync/internal/logging"
	"syllabussync/internal/model"
)

func TestExtractPages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "Homework due Friday", "Final exam Dec 15 2025")

	res, err := env.ingest.ExtractPages(ctx, v.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{model.StageChunk}, res.Next)
	assert.Equal(t, []string{model.StageChunk}, env.queue.stages())

	version, err := env.docs.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, version.Pages)

	pages, err := env.ingestRepo.ListPages(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "Final exam Dec 15 2025", pages[1].Text)

	// a second run replaces the pages
	_, err = env.ingest.ExtractPages(ctx, v.ID, "")
	require.NoError(t, err)
	counts, err := env.ingestRepo.Counts(ctx, v.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts.Pages)
}

func TestExtractPagesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "page one")

	t.Run("invalid locator is permanent", func(t *testing.T) {
		_, err := env.ingest.ExtractPages(ctx, v.ID, "ftp://host/file.pdf")
		require.ErrorIs(t, err, ErrInvalidLocator)
		assert.True(t, IsPermanent(err))
	})

	t.Run("unreadable storage is retryable", func(t *testing.T) {
		env.blobs.err = errors.New("connection reset")
		defer func() { env.blobs.err = nil }()
		_, err := env.ingest.ExtractPages(ctx, v.ID, "")
		require.ErrorIs(t, err, ErrExtraction)
		assert.False(t, IsPermanent(err))
	})

	t.Run("unsupported bytes", func(t *testing.T) {
		env.blobs.data["s3://syllabi/other.pdf"] = []byte("not a pdf")
		_, err := env.ingest.ExtractPages(ctx, v.ID, "s3://syllabi/other.pdf")
		require.ErrorIs(t, err, ErrExtraction)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := env.ingest.ExtractPages(ctx, 9999, "")
		require.ErrorIs(t, err, ErrVersionNotFound)
		assert.True(t, IsPermanent(err))
	})

	assert.Empty(t, env.queue.stages())
}

func TestExtractPagesEnqueueFailureKeepsPages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "a", "b")
	env.queue.err = errors.New("broker down")

	_, err := env.ingest.ExtractPages(ctx, v.ID, "")
	require.ErrorIs(t, err, ErrEnqueue)
	assert.False(t, IsPermanent(err))

	counts, err := env.ingestRepo.Counts(ctx, v.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts.Pages)
}

func TestChunkPagesIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	long := strings.Repeat("Reading: chapter one and two. ", 5)
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "Homework due Friday", long)
	_, err := env.ingest.ExtractPages(ctx, v.ID, "")
	require.NoError(t, err)

	first, err := env.ingest.ChunkPages(ctx, v.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, first.Count, 2)
	assert.Equal(t, []string{model.StageEmbed, model.StageEvents}, first.Next)
	chunksOnce, err := env.ingestRepo.ListChunks(ctx, v.ID)
	require.NoError(t, err)

	_, err = env.ingest.EmbedChunks(ctx, v.ID)
	require.NoError(t, err)

	second, err := env.ingest.ChunkPages(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Count, second.Count)
	chunksTwice, err := env.ingestRepo.ListChunks(ctx, v.ID)
	require.NoError(t, err)

	require.Len(t, chunksTwice, len(chunksOnce))
	for i := range chunksOnce {
		assert.Equal(t, chunksOnce[i].Text, chunksTwice[i].Text)
		assert.Equal(t, chunksOnce[i].PageNumber, chunksTwice[i].PageNumber)
		assert.Equal(t, chunksOnce[i].StartOffset, chunksTwice[i].StartOffset)
		assert.Equal(t, chunksOnce[i].EndOffset, chunksTwice[i].EndOffset)
		assert.LessOrEqual(t, chunksTwice[i].EndOffset-chunksTwice[i].StartOffset, 40)
	}

	counts, err := env.ingestRepo.Counts(ctx, v.ID)
	require.NoError(t, err)
	assert.Zero(t, counts.Embeddings, "re-chunking drops stale embeddings")
}

func TestEmbedChunksUpserts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "Homework due Friday", "Final exam Dec 15 2025")
	_, err := env.ingest.ExtractPages(ctx, v.ID, "")
	require.NoError(t, err)
	chunked, err := env.ingest.ChunkPages(ctx, v.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := env.ingest.EmbedChunks(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, chunked.Count, res.Count)
		assert.Equal(t, "hash-sha256-16", res.Model)
	}

	var rows []model.Embedding
	require.NoError(t, env.db.Find(&rows).Error)
	assert.Len(t, rows, chunked.Count)
	for _, row := range rows {
		assert.Equal(t, testDim, row.Dim)
		assert.Len(t, row.Vector.Slice(), testDim)
	}
}

// hookEmbedder calls before ahead of each Embed.
type hookEmbedder struct {
	ai.Embedder
	before func()
}

func (e *hookEmbedder) Embed(ctx context.Context, texts []string) (*ai.EmbeddingBatch, error) {
	if e.before != nil {
		e.before()
	}
	return e.Embedder.Embed(ctx, texts)
}

func TestEmbedChunksSkipsChunksReplacedMidBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "Homework due Friday", "Final exam Dec 15 2025")
	_, err := env.ingest.ExtractPages(ctx, v.ID, "")
	require.NoError(t, err)
	_, err = env.ingest.ChunkPages(ctx, v.ID)
	require.NoError(t, err)

	embedder := &hookEmbedder{Embedder: env.embedder}
	embedder.before = func() {
		embedder.before = nil
		_, err := env.ingest.ChunkPages(ctx, v.ID)
		require.NoError(t, err)
	}
	svc := NewIngestService(env.docs, env.ingestRepo, env.blobs, env.extractor, embedder, nil, env.queue,
		IngestOptions{ChunkMaxLen: 40, ChunkOverlap: 10}, logging.Discard())

	res, err := svc.EmbedChunks(ctx, v.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Count)

	var orphans int64
	require.NoError(t, env.db.Model(&model.Embedding{}).
		Where("chunk_id NOT IN (?)", env.db.Model(&model.Chunk{}).Select("id")).
		Count(&orphans).Error)
	assert.Zero(t, orphans)

	// the next run covers the replacement chunks
	res, err = svc.EmbedChunks(ctx, v.ID)
	require.NoError(t, err)
	counts, err := env.ingestRepo.Counts(ctx, v.ID)
	require.NoError(t, err)
	assert.EqualValues(t, res.Count, counts.Embeddings)
	assert.Equal(t, counts.Chunks, counts.Embeddings)
}

func TestEmbedChunksWithoutChunks(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "Empty", "")

	res, err := env.ingest.EmbedChunks(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
}

func TestExtractEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus",
		"Welcome to the course\nHomework due Friday",
		"Office hours on request\nFinal exam Dec 15 2025")
	_, err := env.ingest.ExtractPages(ctx, v.ID, "")
	require.NoError(t, err)

	res, err := env.ingest.ExtractEvents(ctx, v.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Count, 1)

	events, err := repositoryEvents(env, v.ID)
	require.NoError(t, err)
	var final *model.Event
	for i := range events {
		if events[i].PageNumber == 2 {
			final = &events[i]
		}
	}
	require.NotNil(t, final)
	assert.Equal(t, "Final exam Dec 15 2025", final.Title)
	assert.Equal(t, time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC), final.DueAt.UTC())
	assert.Nil(t, final.SourceStartOffset)

	// append-only: a re-run duplicates
	again, err := env.ingest.ExtractEvents(ctx, v.ID)
	require.NoError(t, err)
	counts, err := env.ingestRepo.Counts(ctx, v.ID)
	require.NoError(t, err)
	assert.EqualValues(t, res.Count+again.Count, counts.Events)
}

func TestExtractEventsSplitsCarriageReturns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "Mac Export", "Lecture 1: intro\rFinal exam Dec 15 2025\rReading list")
	_, err := env.ingest.ExtractPages(ctx, v.ID, "")
	require.NoError(t, err)

	_, err = env.ingest.ExtractEvents(ctx, v.ID)
	require.NoError(t, err)
	events, err := repositoryEvents(env, v.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Final exam Dec 15 2025", events[0].Title)
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, splitLines("a\r\nb\rc\nd\fe"))
	assert.Empty(t, splitLines("\r\n\n"))
}

func TestExtractEventsTruncatesTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	line := "Exam on 2025-12-15 " + strings.Repeat("é", 300)
	_, v := env.addDocument(t, u.ID, "Long", line)
	_, err := env.ingest.ExtractPages(ctx, v.ID, "")
	require.NoError(t, err)

	_, err = env.ingest.ExtractEvents(ctx, v.ID)
	require.NoError(t, err)
	events, err := repositoryEvents(env, v.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 200, len([]rune(events[0].Title)))
}

func TestRunStage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "Homework due Friday")

	res, err := env.ingest.RunStage(ctx, model.StageJob{VersionID: v.ID, Stage: model.StageExtract})
	require.NoError(t, err)
	assert.Equal(t, model.StageExtract, res.Stage)

	_, err = env.ingest.RunStage(ctx, model.StageJob{VersionID: v.ID, Stage: "summarize"})
	require.ErrorIs(t, err, ErrUnknownStage)
	assert.True(t, IsPermanent(err))
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "Homework due Friday", "Final exam Dec 15 2025")

	status, err := env.ingest.Status(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "created", status.State)

	_, err = env.ingest.ExtractPages(ctx, v.ID, "")
	require.NoError(t, err)
	status, err = env.ingest.Status(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "extracted", status.State)

	_, err = env.ingest.ChunkPages(ctx, v.ID)
	require.NoError(t, err)
	status, err = env.ingest.Status(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "chunked", status.State)

	_, err = env.ingest.EmbedChunks(ctx, v.ID)
	require.NoError(t, err)
	status, err = env.ingest.Status(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "embedded", status.State)
	assert.EqualValues(t, 2, status.Counts.Pages)
}

func TestEnqueueValidatesStage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "x")

	require.ErrorIs(t, env.ingest.Enqueue(ctx, v.ID, "bogus"), ErrUnknownStage)
	require.ErrorIs(t, env.ingest.Enqueue(ctx, 4242, model.StageChunk), ErrVersionNotFound)
	require.NoError(t, env.ingest.Enqueue(ctx, v.ID, model.StageEmbed))
	assert.Equal(t, []string{model.StageEmbed}, env.queue.stages())
}

func TestIsEventCandidate(t *testing.T) {
	assert.True(t, IsEventCandidate("MIDTERM EXAM"))
	assert.True(t, IsEventCandidate("Paper Due: Oct 3"))
	assert.False(t, IsEventCandidate("Lecture 4: sorting"))
}

func repositoryEvents(env *testEnv, versionID uint) ([]model.Event, error) {
	var events []model.Event
	err := env.db.Where("document_version_id = ?", versionID).Order("id ASC").Find(&events).Error
	return events, err
}

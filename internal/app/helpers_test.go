package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"syllabussync/internal/ai"
	"syllabussync/internal/logging"
	"syllabussync/internal/model"
	"syllabussync/internal/pkg/datefind"
	"syllabussync/internal/platform/sqlite"
	"syllabussync/internal/repository"
)

const testDim = 16

type recordingQueue struct {
	mu   sync.Mutex
	jobs []model.StageJob
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job model.StageJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) stages() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.jobs))
	for i, j := range q.jobs {
		out[i] = j.Stage
	}
	return out
}

type fakeBlobs struct {
	data map[string][]byte
	err  error
}

func (b *fakeBlobs) Fetch(_ context.Context, uri string) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	data, ok := b.data[uri]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

// fakeExtractor returns the pages registered for the exact bytes.
type fakeExtractor struct {
	pages map[string][]string
}

func (e *fakeExtractor) ExtractPages(data []byte) ([]string, error) {
	pages, ok := e.pages[string(data)]
	if !ok {
		return nil, errors.New("unsupported document")
	}
	return pages, nil
}

type testEnv struct {
	db         *gorm.DB
	docs       *repository.DocumentRepository
	ingestRepo *repository.IngestRepository
	users      *repository.UserRepository
	queue      *recordingQueue
	blobs      *fakeBlobs
	extractor  *fakeExtractor
	embedder   ai.Embedder
	ingest     *IngestService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.NewMigrated(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &testEnv{
		db:         db,
		docs:       repository.NewDocumentRepository(db),
		ingestRepo: repository.NewIngestRepository(db),
		users:      repository.NewUserRepository(db),
		queue:      &recordingQueue{},
		blobs:      &fakeBlobs{data: map[string][]byte{}},
		extractor:  &fakeExtractor{pages: map[string][]string{}},
		embedder:   ai.NewHashEmbedder(testDim),
	}
	finder := datefind.NewWithClock(time.UTC, func() time.Time {
		return time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC)
	})
	env.ingest = NewIngestService(
		env.docs, env.ingestRepo, env.blobs, env.extractor, env.embedder, finder, env.queue,
		IngestOptions{ChunkMaxLen: 40, ChunkOverlap: 10, StageTimeout: 5 * time.Second},
		logging.Discard(),
	)
	return env
}

// addDocument registers a document whose stored bytes extract to pages.
func (e *testEnv) addDocument(t *testing.T, userID uint, title string, pages ...string) (*model.Document, *model.DocumentVersion) {
	t.Helper()
	uri := "s3://syllabi/" + title + ".pdf"
	e.blobs.data[uri] = []byte(title)
	e.extractor.pages[title] = pages

	doc := &model.Document{UserID: userID, Title: title, StorageURI: uri}
	version := &model.DocumentVersion{ContentSHA256: "sha-" + title}
	require.NoError(t, e.docs.CreateWithVersion(context.Background(), doc, version))
	return doc, version
}

// ingestAll runs every stage in order without a queue.
func (e *testEnv) ingestAll(t *testing.T, versionID uint) {
	t.Helper()
	ctx := context.Background()
	_, err := e.ingest.ExtractPages(ctx, versionID, "")
	require.NoError(t, err)
	_, err = e.ingest.ChunkPages(ctx, versionID)
	require.NoError(t, err)
	_, err = e.ingest.EmbedChunks(ctx, versionID)
	require.NoError(t, err)
	_, err = e.ingest.ExtractEvents(ctx, versionID)
	require.NoError(t, err)
}

func (e *testEnv) user(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := e.users.EnsureByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

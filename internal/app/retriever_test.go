package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabussync/internal/logging"
	"syllabussync/internal/model"
	"syllabussync/internal/repository"
)

type fakeSearcher struct {
	candidates []repository.Candidate
	queries    []repository.CandidateQuery
	deadlines  []time.Time
	err        error
}

func (s *fakeSearcher) Search(ctx context.Context, q repository.CandidateQuery) ([]repository.Candidate, error) {
	s.queries = append(s.queries, q)
	if d, ok := ctx.Deadline(); ok {
		s.deadlines = append(s.deadlines, d)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

type memoryVectorCache struct {
	entries map[string][]float32
	gets    int
	err     error
}

func (c *memoryVectorCache) Get(_ context.Context, model, text string) ([]float32, bool, error) {
	c.gets++
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.entries[model+"|"+text]
	return v, ok, nil
}

func (c *memoryVectorCache) Set(_ context.Context, model, text string, vec []float32) error {
	if c.err != nil {
		return c.err
	}
	c.entries[model+"|"+text] = vec
	return nil
}

func TestRetrieveInfersCourseFromQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	cs, csv := env.addDocument(t, u.ID, "CS101 Syllabus", "Homework due Friday", "Final exam Dec 15 2025")
	_, mathv := env.addDocument(t, u.ID, "MATH200 Syllabus", "Problem set due Monday", "Midterm exam Oct 20 2025")
	env.ingestAll(t, csv.ID)
	env.ingestAll(t, mathv.ID)

	r := NewRetriever(env.docs, repository.NewScanSearcher(env.db), env.embedder, nil, RetrievalOptions{}, logging.Discard())
	got, err := r.Retrieve(ctx, RetrieveInput{Query: "What is due for CS 101?", Scope: Scope{UserID: u.ID}, K: 5})
	require.NoError(t, err)

	assert.Equal(t, []uint{cs.ID}, got.InferredDocumentIDs)
	assert.Equal(t, []uint{csv.ID}, got.VersionIDs)
	require.NotEmpty(t, got.Passages)
	for _, p := range got.Passages {
		assert.Equal(t, cs.ID, p.DocumentID)
		assert.Equal(t, "CS101 Syllabus", p.DocumentTitle)
	}
	assert.Equal(t, "hash-sha256-16", got.Model)
}

func TestRetrieveUserScopeUsesLatestVersions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	other := env.user(t, "other@local")
	doc, v1 := env.addDocument(t, u.ID, "CS101 Syllabus", "old text")
	_, foreign := env.addDocument(t, other.ID, "CS101 Notes", "not yours")

	v2 := &model.DocumentVersion{DocumentID: doc.ID, ContentSHA256: "second"}
	require.NoError(t, env.db.Create(v2).Error)

	searcher := &fakeSearcher{}
	r := NewRetriever(env.docs, searcher, env.embedder, nil, RetrievalOptions{}, logging.Discard())
	_, err := r.Retrieve(ctx, RetrieveInput{Query: "anything", Scope: Scope{UserID: u.ID}})
	require.ErrorIs(t, err, ErrNoCandidates)

	require.Len(t, searcher.queries, 1)
	assert.Equal(t, []uint{v2.ID}, searcher.queries[0].VersionIDs)
	assert.NotContains(t, searcher.queries[0].VersionIDs, v1.ID)
	assert.NotContains(t, searcher.queries[0].VersionIDs, foreign.ID)
}

func TestRetrieveScopeResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "dev@local")
	r := NewRetriever(env.docs, &fakeSearcher{}, env.embedder, nil, RetrievalOptions{}, logging.Discard())

	_, err := r.Retrieve(ctx, RetrieveInput{Query: "q", Scope: Scope{VersionIDs: []uint{404}}})
	require.ErrorIs(t, err, ErrScopeResolution)

	_, err = r.Retrieve(ctx, RetrieveInput{Query: "q", Scope: Scope{UserID: u.ID}})
	require.ErrorIs(t, err, ErrScopeResolution)

	doc, _ := env.addDocument(t, u.ID, "CS101 Syllabus", "x")
	_, err = r.Retrieve(ctx, RetrieveInput{Query: "q", Scope: Scope{UserID: u.ID, DocumentIDs: []uint{doc.ID + 100}}})
	require.ErrorIs(t, err, ErrScopeResolution)
}

func TestRetrieveCapsPerDocument(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "x")

	// ten candidates sharing 9 of 10 words: similar, but not over the
	// duplicate threshold
	var candidates []repository.Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, repository.Candidate{
			ChunkID:           uint(i + 1),
			DocumentID:        1,
			DocumentVersionID: v.ID,
			Text:              fmt.Sprintf("alpha beta gamma delta epsilon zeta eta theta iota w%d", i),
			Score:             1 - float64(i)*0.01,
		})
	}
	searcher := &fakeSearcher{candidates: candidates}
	r := NewRetriever(env.docs, searcher, env.embedder, nil, RetrievalOptions{}, logging.Discard())

	got, err := r.Retrieve(context.Background(), RetrieveInput{Query: "reading", Scope: Scope{VersionIDs: []uint{v.ID}}, K: 5})
	require.NoError(t, err)
	require.Len(t, got.Passages, 2)
	assert.Equal(t, uint(1), got.Passages[0].ChunkID)
	assert.Equal(t, uint(2), got.Passages[1].ChunkID)
	assert.InDelta(t, 0.99-0.7*0.9, got.Passages[1].AdjustedScore, 1e-9)
	assert.Equal(t, 20, searcher.queries[0].Limit)
}

func TestRetrieveExamFilter(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "x")
	scope := Scope{VersionIDs: []uint{v.ID}}

	searcher := &fakeSearcher{candidates: []repository.Candidate{
		{ChunkID: 1, DocumentID: 1, Text: "Lab reports are graded weekly", Score: 0.9},
		{ChunkID: 2, DocumentID: 2, Text: "The Midterm covers weeks one to six", Score: 0.8},
		{ChunkID: 3, DocumentID: 3, Text: "Office hours Tuesdays", Score: 0.7},
	}}
	r := NewRetriever(env.docs, searcher, env.embedder, nil, RetrievalOptions{}, logging.Discard())

	got, err := r.Retrieve(context.Background(), RetrieveInput{Query: "When is the exam?", Scope: scope})
	require.NoError(t, err)
	assert.True(t, got.ExamIntent)
	require.Len(t, got.Passages, 1)
	assert.Equal(t, uint(2), got.Passages[0].ChunkID)

	searcher.candidates = searcher.candidates[:1]
	got, err = r.Retrieve(context.Background(), RetrieveInput{Query: "final grade policy", Scope: scope})
	require.NoError(t, err)
	assert.True(t, got.ExamIntent)
	require.Len(t, got.Passages, 1, "filter is dropped when nothing matches")
	assert.Equal(t, uint(1), got.Passages[0].ChunkID)
}

func TestRetrieveQueryCache(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "x")
	cache := &memoryVectorCache{entries: map[string][]float32{}}
	r := NewRetriever(env.docs, &fakeSearcher{}, env.embedder, cache, RetrievalOptions{}, logging.Discard())
	in := RetrieveInput{Query: "grading", Scope: Scope{VersionIDs: []uint{v.ID}}}

	_, err := r.Retrieve(context.Background(), in)
	require.ErrorIs(t, err, ErrNoCandidates)
	assert.Contains(t, cache.entries, "hash-sha256-16|grading")

	cache.err = errors.New("redis down")
	_, err = r.Retrieve(context.Background(), in)
	require.ErrorIs(t, err, ErrNoCandidates, "cache failures do not fail retrieval")
	assert.Equal(t, 2, cache.gets)
}

func TestRetrieveSearchError(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "x")
	r := NewRetriever(env.docs, &fakeSearcher{err: errors.New("boom")}, env.embedder, nil, RetrievalOptions{}, logging.Discard())

	_, err := r.Retrieve(context.Background(), RetrieveInput{Query: "q", Scope: Scope{VersionIDs: []uint{v.ID}}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCandidates)
}

func TestRetrieveBoundsSearchWithTimeout(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "dev@local")
	_, v := env.addDocument(t, u.ID, "CS101 Syllabus", "x")
	searcher := &fakeSearcher{}
	r := NewRetriever(env.docs, searcher, env.embedder, nil, RetrievalOptions{SearchTimeout: time.Minute}, logging.Discard())

	start := time.Now()
	_, err := r.Retrieve(context.Background(), RetrieveInput{Query: "q", Scope: Scope{VersionIDs: []uint{v.ID}}})
	require.ErrorIs(t, err, ErrNoCandidates)
	require.Len(t, searcher.deadlines, 1)
	assert.WithinDuration(t, start.Add(time.Minute), searcher.deadlines[0], 5*time.Second)
}

func TestFetchLimit(t *testing.T) {
	r := NewRetriever(nil, nil, nil, nil, RetrievalOptions{}, logging.Discard())
	assert.Equal(t, 20, r.FetchLimit(1))
	assert.Equal(t, 20, r.FetchLimit(5))
	assert.Equal(t, 40, r.FetchLimit(10))
}

func TestInferCourseDocuments(t *testing.T) {
	docs := []model.Document{
		{ID: 1, Title: "CS101 Syllabus"},
		{ID: 2, Title: "MATH 200 Syllabus"},
		{ID: 3, Title: "cs 330 notes"},
	}
	tests := []struct {
		query string
		want  []uint
	}{
		{"What is due for CS 101?", []uint{1}},
		{"MATH200 midterm", []uint{2}},
		{"compare CS101 and MATH 200", []uint{1, 2}},
		{"when is CS 330 final", []uint{3}},
		{"cs 101 lowercase is not a course token", nil},
		{"no course here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, InferCourseDocuments(tt.query, docs))
		})
	}
}

func TestExamIntent(t *testing.T) {
	assert.True(t, ExamIntent("When is the FINAL?"))
	assert.True(t, ExamIntent("midterm room"))
	assert.False(t, ExamIntent("homework policy"))
}

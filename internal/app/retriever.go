package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"syllabussync/internal/ai"
	"syllabussync/internal/model"
	"syllabussync/internal/pkg/rerank"
	"syllabussync/internal/repository"
)

const (
	DefaultTopK            = 5
	defaultMinFetch        = 20
	defaultFetchMultiplier = 4
	defaultSearchTimeout   = 10 * time.Second
)

var (
	courseTokenPattern = regexp.MustCompile(`\b[A-Z]{2,}\s*\d{3}\b`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	examKeywords       = []string{"exam", "midterm", "final"}
)

// QueryVectorCache stores query embeddings per model. Lookups and writes
// are best effort.
type QueryVectorCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool, error)
	Set(ctx context.Context, model, text string, vec []float32) error
}

type RetrievalOptions struct {
	DefaultK        int
	MinFetch        int
	FetchMultiplier int
	DupThreshold    float64
	Lambda          float64
	// SearchTimeout bounds scope lookups and the vector search.
	SearchTimeout time.Duration
}

// Scope restricts a query. Non-empty VersionIDs is a strict scope and
// wins over the user-level fields.
type Scope struct {
	VersionIDs  []uint
	UserID      uint
	DocumentIDs []uint
}

func (s Scope) Strict() bool {
	return len(s.VersionIDs) > 0
}

type RetrieveInput struct {
	Query string
	Scope Scope
	K     int
}

type Passage struct {
	repository.Candidate
	AdjustedScore float64 `json:"adjusted_score"`
}

type Retrieval struct {
	Passages            []Passage `json:"passages"`
	VersionIDs          []uint    `json:"version_ids"`
	InferredDocumentIDs []uint    `json:"inferred_document_ids,omitempty"`
	ExamIntent          bool      `json:"exam_intent"`
	Model               string    `json:"model"`
}

type Retriever struct {
	docs     *repository.DocumentRepository
	searcher repository.CandidateSearcher
	embedder ai.Embedder
	cache    QueryVectorCache
	opts     RetrievalOptions
	logger   *log.Logger
}

// NewRetriever builds a retriever; cache may be nil.
func NewRetriever(
	docs *repository.DocumentRepository,
	searcher repository.CandidateSearcher,
	embedder ai.Embedder,
	cache QueryVectorCache,
	opts RetrievalOptions,
	logger *log.Logger,
) *Retriever {
	if opts.DefaultK <= 0 {
		opts.DefaultK = DefaultTopK
	}
	if opts.MinFetch <= 0 {
		opts.MinFetch = defaultMinFetch
	}
	if opts.FetchMultiplier <= 0 {
		opts.FetchMultiplier = defaultFetchMultiplier
	}
	if opts.DupThreshold <= 0 {
		opts.DupThreshold = rerank.DefaultDupThreshold
	}
	if opts.Lambda <= 0 {
		opts.Lambda = rerank.DefaultLambda
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = defaultSearchTimeout
	}
	return &Retriever{
		docs:     docs,
		searcher: searcher,
		embedder: embedder,
		cache:    cache,
		opts:     opts,
		logger:   logger,
	}
}

// Retrieve returns up to K diversified passages for the query. It fails
// with ErrScopeResolution when the scope holds no versions and with
// ErrNoCandidates when the search comes back empty.
func (r *Retriever) Retrieve(ctx context.Context, in RetrieveInput) (*Retrieval, error) {
	k := in.K
	if k <= 0 {
		k = r.opts.DefaultK
	}

	scopeCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	versionIDs, inferred, err := r.resolveScope(scopeCtx, in.Query, in.Scope)
	cancel()
	if err != nil {
		return nil, err
	}
	out := &Retrieval{VersionIDs: versionIDs, InferredDocumentIDs: inferred, ExamIntent: ExamIntent(in.Query)}

	vec, modelID, err := r.embedQuery(ctx, in.Query)
	if err != nil {
		return nil, err
	}
	out.Model = modelID

	searchCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	candidates, err := r.searcher.Search(searchCtx, repository.CandidateQuery{
		Vector:     vec,
		Model:      modelID,
		VersionIDs: versionIDs,
		Limit:      r.FetchLimit(k),
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if out.ExamIntent {
		candidates = filterExamCandidates(candidates)
	}
	if len(candidates) == 0 {
		return out, ErrNoCandidates
	}

	ranked := make([]rerank.Candidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = rerank.Candidate{DocumentID: c.DocumentID, Text: c.Text, Score: c.Score}
	}
	selected := rerank.Select(ranked, k, rerank.Options{DupThreshold: r.opts.DupThreshold, Lambda: r.opts.Lambda})
	out.Passages = make([]Passage, len(selected))
	for i, sel := range selected {
		out.Passages[i] = Passage{Candidate: candidates[sel.Index], AdjustedScore: sel.AdjustedScore}
	}

	r.logger.Debug("retrieved passages",
		"versions", len(versionIDs), "candidates", len(candidates), "selected", len(out.Passages),
		"exam_intent", out.ExamIntent, "model", modelID)
	return out, nil
}

// FetchLimit is how many raw candidates are read before diversification.
func (r *Retriever) FetchLimit(k int) int {
	if n := r.opts.FetchMultiplier * k; n > r.opts.MinFetch {
		return n
	}
	return r.opts.MinFetch
}

func (r *Retriever) resolveScope(ctx context.Context, query string, scope Scope) ([]uint, []uint, error) {
	if scope.Strict() {
		ids := make([]uint, 0, len(scope.VersionIDs))
		for _, id := range scope.VersionIDs {
			v, err := r.docs.GetVersion(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			if v != nil {
				ids = append(ids, v.ID)
			}
		}
		if len(ids) == 0 {
			return nil, nil, fmt.Errorf("%w: versions %v", ErrScopeResolution, scope.VersionIDs)
		}
		return ids, nil, nil
	}

	docs, err := r.docs.ListByUserID(ctx, scope.UserID)
	if err != nil {
		return nil, nil, err
	}
	var inferred []uint
	if len(scope.DocumentIDs) > 0 {
		docs = keepDocuments(docs, scope.DocumentIDs)
	} else if inferred = InferCourseDocuments(query, docs); len(inferred) > 0 {
		docs = keepDocuments(docs, inferred)
	}

	refs, err := r.docs.LatestVersions(ctx, docs)
	if err != nil {
		return nil, nil, err
	}
	if len(refs) == 0 {
		return nil, inferred, fmt.Errorf("%w: user %d has no ingested documents in scope", ErrScopeResolution, scope.UserID)
	}
	ids := make([]uint, len(refs))
	for i, ref := range refs {
		ids[i] = ref.VersionID
	}
	return ids, inferred, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, string, error) {
	cacheModel := r.embedder.ModelID()
	if r.cache != nil {
		vec, ok, err := r.cache.Get(ctx, cacheModel, query)
		if err != nil {
			r.logger.Warn("query cache read failed", "err", err)
		} else if ok {
			return vec, cacheModel, nil
		}
	}

	batch, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, "", fmt.Errorf("embed query failed: %w", err)
	}
	if len(batch.Vectors) != 1 {
		return nil, "", fmt.Errorf("%w: got %d vectors for 1 query", ErrEmbeddingProvider, len(batch.Vectors))
	}
	vec := batch.Vectors[0]

	// a fallback vector is not cached under the primary model's key
	if r.cache != nil && batch.Model == cacheModel {
		if err := r.cache.Set(ctx, cacheModel, query, vec); err != nil {
			r.logger.Warn("query cache write failed", "err", err)
		}
	}
	return vec, batch.Model, nil
}

// InferCourseDocuments matches course codes in the query, such as "CS 101"
// or "CS101", against document titles with whitespace removed.
func InferCourseDocuments(query string, docs []model.Document) []uint {
	tokens := courseTokenPattern.FindAllString(query, -1)
	if len(tokens) == 0 {
		return nil
	}
	for i, t := range tokens {
		tokens[i] = stripWhitespace(t)
	}

	var ids []uint
	for _, d := range docs {
		title := strings.ToUpper(stripWhitespace(d.Title))
		for _, t := range tokens {
			if strings.Contains(title, t) {
				ids = append(ids, d.ID)
				break
			}
		}
	}
	return ids
}

// ExamIntent reports whether the query asks about exams.
func ExamIntent(query string) bool {
	return containsAny(strings.ToLower(query), examKeywords)
}

// filterExamCandidates keeps exam-related candidates, or all of them when
// none match.
func filterExamCandidates(candidates []repository.Candidate) []repository.Candidate {
	kept := make([]repository.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if containsAny(strings.ToLower(c.Text), examKeywords) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return candidates
	}
	return kept
}

func keepDocuments(docs []model.Document, ids []uint) []model.Document {
	want := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	kept := docs[:0:0]
	for _, d := range docs {
		if _, ok := want[d.ID]; ok {
			kept = append(kept, d)
		}
	}
	return kept
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func stripWhitespace(s string) string {
	return whitespacePattern.ReplaceAllString(s, "")
}

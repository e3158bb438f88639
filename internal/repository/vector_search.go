package repository

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"syllabussync/internal/model"
)

// Candidate is one chunk returned by a vector search. Score is
// 1 - cosine distance, so higher is closer.
type Candidate struct {
	ChunkID           uint    `json:"chunk_id"`
	PageNumber        int     `json:"page"`
	Text              string  `json:"text"`
	DocumentID        uint    `json:"document_id"`
	DocumentTitle     string  `json:"document_title"`
	DocumentVersionID uint    `json:"document_version_id"`
	Score             float64 `json:"score"`
}

type CandidateQuery struct {
	Vector     []float32
	Model      string
	VersionIDs []uint
	Limit      int
}

// CandidateSearcher returns up to Limit candidates restricted to
// VersionIDs and Model, ordered by descending score.
type CandidateSearcher interface {
	Search(ctx context.Context, q CandidateQuery) ([]Candidate, error)
}

// NewCandidateSearcher picks pgvector ordering on Postgres and an
// in-process cosine scan on every other dialect.
func NewCandidateSearcher(db *gorm.DB) CandidateSearcher {
	if db.Dialector.Name() == "postgres" {
		return NewPgvectorSearcher(db)
	}
	return NewScanSearcher(db)
}

const candidateColumns = `c.id AS chunk_id, c.page_number, c.text,
	d.id AS document_id, d.title AS document_title, dv.id AS document_version_id`

const candidateJoins = `FROM chunks c
	JOIN embeddings e ON e.chunk_id = c.id
	JOIN document_versions dv ON dv.id = c.document_version_id
	JOIN documents d ON d.id = dv.document_id
	WHERE c.document_version_id IN ? AND e.model = ?`

type PgvectorSearcher struct {
	db *gorm.DB
}

func NewPgvectorSearcher(db *gorm.DB) *PgvectorSearcher {
	return &PgvectorSearcher{db: db}
}

func (s *PgvectorSearcher) Search(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	if len(q.VersionIDs) == 0 || q.Limit <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(q.Vector)
	sql := `SELECT ` + candidateColumns + `, 1 - (e.vector <=> ?) AS score ` +
		candidateJoins + ` ORDER BY e.vector <=> ? LIMIT ?`

	var out []Candidate
	if err := s.db.WithContext(ctx).Raw(sql, vec, q.VersionIDs, q.Model, vec, q.Limit).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("pgvector search failed: %w", err)
	}
	return out, nil
}

// ScanSearcher loads every scoped embedding and ranks by cosine in Go.
// Suited to MySQL and SQLite, where no vector index exists.
type ScanSearcher struct {
	db *gorm.DB
}

func NewScanSearcher(db *gorm.DB) *ScanSearcher {
	return &ScanSearcher{db: db}
}

type scannedRow struct {
	Candidate
	Vector model.Vector
}

func (s *ScanSearcher) Search(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	if len(q.VersionIDs) == 0 || q.Limit <= 0 {
		return nil, nil
	}
	sql := `SELECT ` + candidateColumns + `, e.vector AS vector ` + candidateJoins

	var rows []scannedRow
	if err := s.db.WithContext(ctx).Raw(sql, q.VersionIDs, q.Model).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan embeddings failed: %w", err)
	}

	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		vec := row.Vector.Slice()
		if len(vec) != len(q.Vector) {
			continue
		}
		c := row.Candidate
		c.Score = CosineSimilarity(q.Vector, vec)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

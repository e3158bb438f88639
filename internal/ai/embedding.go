package ai

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const DefaultEmbeddingDimension = 1536

var ErrEmbeddingProvider = errors.New("embedding provider failed")

// EmbeddingBatch is one vector per input text, in input order.
type EmbeddingBatch struct {
	Model     string
	Dimension int
	Vectors   [][]float32
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) (*EmbeddingBatch, error)
	ModelID() string
}

// HashEmbedder tiles the sha256 digest of the text, each byte mapped to
// [0,1), until the dimension is filled. Deterministic and offline.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultEmbeddingDimension
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) ModelID() string {
	return fmt.Sprintf("hash-sha256-%d", e.dim)
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) (*EmbeddingBatch, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = HashVector(t, e.dim)
	}
	return &EmbeddingBatch{Model: e.ModelID(), Dimension: e.dim, Vectors: vectors}, nil
}

func HashVector(text string, dim int) []float32 {
	digest := sha256.Sum256([]byte(text))
	out := make([]float32, dim)
	for i := range out {
		out[i] = float32(digest[i%len(digest)]) / 256
	}
	return out
}

type OpenAIEmbedderConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dimension         int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// OpenAIEmbedder calls any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	timeout   time.Duration
	limiter   *rate.Limiter
}

func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrEmbeddingProvider)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		timeout:   cfg.Timeout,
		limiter:   newLimiter(cfg.RequestsPerSecond, cfg.Burst),
	}, nil
}

func (e *OpenAIEmbedder) ModelID() string {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) (*EmbeddingBatch, error) {
	if len(texts) == 0 {
		return &EmbeddingBatch{Model: e.model, Dimension: e.dimension}, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrEmbeddingProvider, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	if strings.HasPrefix(e.model, "text-embedding-3") && e.dimension > 0 {
		req.Dimensions = e.dimension
	}
	resp, err := e.client.CreateEmbeddings(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingProvider, len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i := range data {
		vectors[i] = data[i].Embedding
	}
	return &EmbeddingBatch{Model: e.model, Dimension: len(vectors[0]), Vectors: vectors}, nil
}

// FallbackEmbedder uses primary and switches to fallback whenever primary
// fails, so ingestion never stops on provider errors.
type FallbackEmbedder struct {
	primary  Embedder
	fallback Embedder
	logger   *log.Logger
}

func NewFallbackEmbedder(primary, fallback Embedder, logger *log.Logger) *FallbackEmbedder {
	return &FallbackEmbedder{primary: primary, fallback: fallback, logger: logger}
}

func (e *FallbackEmbedder) ModelID() string {
	return e.primary.ModelID()
}

func (e *FallbackEmbedder) Embed(ctx context.Context, texts []string) (*EmbeddingBatch, error) {
	batch, err := e.primary.Embed(ctx, texts)
	if err == nil {
		return batch, nil
	}
	if e.logger != nil {
		e.logger.Warn("embedding provider failed, using fallback",
			"model", e.primary.ModelID(), "fallback", e.fallback.ModelID(), "err", err)
	}
	return e.fallback.Embed(ctx, texts)
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

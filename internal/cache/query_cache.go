package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// QueryEmbeddingCache remembers query vectors keyed by model and text.
type QueryEmbeddingCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewQueryEmbeddingCache(client *redisv9.Client, ttl time.Duration) *QueryEmbeddingCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &QueryEmbeddingCache{client: client, ttl: ttl}
}

func (c *QueryEmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.key(model, text)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get query embedding failed: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached query embedding failed: %w", err)
	}
	return vec, true, nil
}

func (c *QueryEmbeddingCache) Set(ctx context.Context, model, text string, vec []float32) error {
	payload, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal query embedding failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(model, text), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set query embedding failed: %w", err)
	}
	return nil
}

func (c *QueryEmbeddingCache) key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("query:emb:%s:%s", model, hex.EncodeToString(sum[:]))
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("stage lock held by another worker")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// StageLock serializes runs of one stage for one document version across
// workers.
type StageLock struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewStageLock(client *redisv9.Client, ttl time.Duration) *StageLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StageLock{client: client, ttl: ttl}
}

// Acquire takes the lock or returns ErrLockHeld. The returned func
// releases it.
func (l *StageLock) Acquire(ctx context.Context, versionID uint, stage string) (func(context.Context) error, error) {
	key := l.key(versionID, stage)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire stage lock failed: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis release stage lock failed: %w", err)
		}
		return nil
	}, nil
}

func (l *StageLock) key(versionID uint, stage string) string {
	return fmt.Sprintf("ingest:lock:%d:%s", versionID, stage)
}

package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const submissionKeyPrefix = "submission:"

// Deletes the marker only when the caller still owns it, so a slow request
// cannot clear a marker that expired and was re-acquired by another one.
var releaseSubmissionScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisAdapter is the shared submission guard used when several server
// instances sit behind one dashboard.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, submissionKeyPrefix+key, token, r.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key, token string) error {
	return releaseSubmissionScript.Run(ctx, r.client, []string{submissionKeyPrefix + key}, token).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

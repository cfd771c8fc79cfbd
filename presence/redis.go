package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func presenceKey(userID string) string {
	return "marketlink:presence:" + userID
}

func (r *RedisStore) Set(ctx context.Context, userID, nodeID string, ttl time.Duration) error {
	return r.client.Set(ctx, presenceKey(userID), nodeID, ttl).Err()
}

func (r *RedisStore) Refresh(ctx context.Context, userID string, ttl time.Duration) error {
	return r.client.Expire(ctx, presenceKey(userID), ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, userID string) (string, error) {
	node, err := r.client.Get(ctx, presenceKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return node, err
}

func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, presenceKey(userID)).Err()
}

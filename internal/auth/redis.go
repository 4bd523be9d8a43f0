package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dangthobach/data-extraction/internal/entity"
)

// redisSharedCache stores credentials as JSON under a key prefix.
type redisSharedCache struct {
	client *redis.Client
	prefix string
}

// NewRedisSharedCache builds the Redis-backed shared credential tier.
func NewRedisSharedCache(client *redis.Client, prefix string) SharedCache {
	if prefix == "" {
		prefix = "iam_auth:"
	}
	return &redisSharedCache{client: client, prefix: prefix}
}

func (s *redisSharedCache) Get(ctx context.Context, key string) (*entity.Credential, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cred entity.Credential
	if err := json.Unmarshal(val, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *redisSharedCache) Set(ctx context.Context, key string, cred *entity.Credential, ttl time.Duration) error {
	val, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, val, ttl).Err()
}

func (s *redisSharedCache) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

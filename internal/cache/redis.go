package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"polysignal/internal/config"
	"polysignal/internal/model"
)

// RedisStore keeps cached lookups as JSON strings under a key prefix, expired
// by redis itself.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient dials nothing; go-redis connects lazily on first use.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) ([]model.ArticleSignal, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	articles, err := decodeArticles([]byte(val))
	if err != nil {
		return nil, false, fmt.Errorf("decoding cached articles for %q: %w", key, err)
	}
	return articles, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, articles []model.ArticleSignal, ttl time.Duration) error {
	data, err := encodeArticles(articles)
	if err != nil {
		return fmt.Errorf("encoding articles: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, string(data), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// ResultCache stores immutable results by session id. Get returns (nil, nil) on a miss.
type ResultCache interface {
	Get(ctx context.Context, sessionID string) (*models.Result, error)
	Set(ctx context.Context, res *models.Result) error
}

// RedisResultCache implements ResultCache on Redis
type RedisResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisResultCache connects to Redis and verifies the connection
func NewRedisResultCache(ctx context.Context, cfg RedisConfig) (*RedisResultCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisResultCacheFromClient(client, cfg.TTL), nil
}

// NewRedisResultCacheFromClient wraps an existing client
func NewRedisResultCacheFromClient(client *redis.Client, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{
		client: client,
		prefix: "assessment:result:",
		ttl:    ttl,
	}
}

func (c *RedisResultCache) key(sessionID string) string {
	return c.prefix + sessionID
}

// Get reads a cached result
func (c *RedisResultCache) Get(ctx context.Context, sessionID string) (*models.Result, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached result: %w", err)
	}

	var res models.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &res, nil
}

// Set writes a result to the cache
func (c *RedisResultCache) Set(ctx context.Context, res *models.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := c.client.Set(ctx, c.key(res.SessionID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisResultCache) Close() error {
	return c.client.Close()
}

// CachedRepository is a decorator that serves results from a cache.
// Cache failures are logged and never surfaced.
type CachedRepository struct {
	Repository
	cache ResultCache
}

// WithResultCache wraps a Repository with a read-through result cache
func WithResultCache(repo Repository, cache ResultCache) *CachedRepository {
	return &CachedRepository{Repository: repo, cache: cache}
}

// GetResult reads through the cache
func (r *CachedRepository) GetResult(ctx context.Context, sessionID string) (*models.Result, error) {
	res, err := r.cache.Get(ctx, sessionID)
	if err != nil {
		slog.Warn("result cache read failed", "session_id", sessionID, "error", err)
	} else if res != nil {
		return res, nil
	}

	res, err = r.Repository.GetResult(ctx, sessionID)
	if err != nil || res == nil {
		return res, err
	}

	r.store(ctx, res)
	return res, nil
}

// CompleteSession writes the new result through to the cache
func (r *CachedRepository) CompleteSession(ctx context.Context, id string, completedAt time.Time, build BuildResultFunc) (*models.Session, *models.Result, error) {
	s, res, err := r.Repository.CompleteSession(ctx, id, completedAt, build)
	if err != nil {
		return nil, nil, err
	}
	r.store(ctx, res)
	return s, res, nil
}

func (r *CachedRepository) store(ctx context.Context, res *models.Result) {
	if err := r.cache.Set(ctx, res); err != nil {
		slog.Warn("result cache write failed", "session_id", res.SessionID, "error", err)
	}
}

// Close closes the wrapped repository and the cache
func (r *CachedRepository) Close() error {
	err := r.Repository.Close()
	if c, ok := r.cache.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

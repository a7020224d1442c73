package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gigflow/internal/config"
	"gigflow/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisDraftStore keeps hire selections and rate counters in Redis.
type RedisDraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisDraftStore(client *redis.Client, ttl time.Duration) *RedisDraftStore {
	return &RedisDraftStore{
		client: client,
		ttl:    ttl,
	}
}

func selectionKey(userID, gigID int64) string {
	return fmt.Sprintf("selection:%d:%d", userID, gigID)
}

func rateLimitKey(key string) string {
	return "rate_limit:" + key
}

func (r *RedisDraftStore) GetSelection(ctx context.Context, userID, gigID int64) (*models.HireSelection, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, selectionKey(userID, gigID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selection from redis: %w", err)
	}

	var sel models.HireSelection
	if err := json.Unmarshal([]byte(val), &sel); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selection: %w", err)
	}
	return &sel, nil
}

func (r *RedisDraftStore) SetSelection(ctx context.Context, sel *models.HireSelection) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}
	if err := r.client.Set(ctx, selectionKey(sel.UserID, sel.GigID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set selection in redis: %w", err)
	}
	return nil
}

func (r *RedisDraftStore) ClearSelection(ctx context.Context, userID, gigID int64) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, selectionKey(userID, gigID)).Err(); err != nil {
		return fmt.Errorf("failed to delete selection from redis: %w", err)
	}
	return nil
}

// CheckRateLimit counts one hit against key and reports whether it is within limit.
func (r *RedisDraftStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	k := rateLimitKey(key)
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}

var errNilClient = errors.New("redis client is nil")

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes client if it is set.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

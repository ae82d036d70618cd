package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFlagTTL bounds how long an unobserved flag lingers in Redis.
const DefaultFlagTTL = 24 * time.Hour

// Redis stores flags as operation:{job_id}:cancel keys so several processes
// can share one coordinator.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// OpenRedis connects to url (redis://host:port/db) and pings it.
func OpenRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}
	return NewRedis(client, ttl), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultFlagTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func cancelKey(jobID string) string {
	return "operation:" + jobID + ":cancel"
}

func (r *Redis) RequestCancel(ctx context.Context, jobID string) error {
	if err := r.client.Set(ctx, cancelKey(jobID), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	return nil
}

func (r *Redis) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	v, err := r.client.Get(ctx, cancelKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cancel flag: %w", err)
	}
	return v == "1", nil
}

func (r *Redis) Clear(ctx context.Context, jobID string) error {
	if err := r.client.Del(ctx, cancelKey(jobID)).Err(); err != nil {
		return fmt.Errorf("clear cancel flag: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

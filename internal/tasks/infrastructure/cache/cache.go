// Package cache provides the write-through task cache. The cache is never
// the source of truth: misses fall back to durable storage and failures only
// degrade performance, so every operation is best-effort.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/redis/go-redis/v9"
)

// TaskCache shadows persisted task rows under a TTL.
type TaskCache interface {
	// Get returns the cached raw snapshot for id, or false on a miss.
	Get(ctx context.Context, id int64) (*domain.Task, bool)
	// Set stores the raw persisted fields of the task.
	Set(ctx context.Context, t *domain.Task)
	// Invalidate drops the entry for id.
	Invalidate(ctx context.Context, id int64)

	// SetPrioritySuggestion caches an advisory priority suggestion for a task.
	SetPrioritySuggestion(ctx context.Context, taskID int64, suggestion any)
	// GetPrioritySuggestion returns the cached suggestion payload, if any.
	GetPrioritySuggestion(ctx context.Context, taskID int64) (json.RawMessage, bool)
}

// RedisTaskCache is the Redis-backed implementation.
type RedisTaskCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisTaskCache creates a cache with the given TTL (1 hour is the
// conventional default).
func NewRedisTaskCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisTaskCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisTaskCache{client: client, ttl: ttl, logger: logger}
}

func taskKey(id int64) string { return fmt.Sprintf("task:%d", id) }

func suggestionKey(taskID int64) string { return fmt.Sprintf("priority_suggestion:%d", taskID) }

func (c *RedisTaskCache) Get(ctx context.Context, id int64) (*domain.Task, bool) {
	raw, err := c.client.Get(ctx, taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("task cache read failed", "task_id", id, "error", err)
		return nil, false
	}

	var t domain.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		c.logger.Warn("task cache entry corrupt, dropping", "task_id", id, "error", err)
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &t, true
}

func (c *RedisTaskCache) Set(ctx context.Context, t *domain.Task) {
	raw, err := json.Marshal(t)
	if err != nil {
		c.logger.Warn("task cache encode failed", "task_id", t.ID, "error", err)
		return
	}
	if err := c.client.Set(ctx, taskKey(t.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("task cache write failed", "task_id", t.ID, "error", err)
	}
}

func (c *RedisTaskCache) Invalidate(ctx context.Context, id int64) {
	if err := c.client.Del(ctx, taskKey(id)).Err(); err != nil {
		c.logger.Warn("task cache invalidate failed", "task_id", id, "error", err)
	}
}

func (c *RedisTaskCache) SetPrioritySuggestion(ctx context.Context, taskID int64, suggestion any) {
	raw, err := json.Marshal(suggestion)
	if err != nil {
		c.logger.Warn("suggestion encode failed", "task_id", taskID, "error", err)
		return
	}
	if err := c.client.Set(ctx, suggestionKey(taskID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("suggestion cache write failed", "task_id", taskID, "error", err)
	}
}

func (c *RedisTaskCache) GetPrioritySuggestion(ctx context.Context, taskID int64) (json.RawMessage, bool) {
	raw, err := c.client.Get(ctx, suggestionKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("suggestion cache read failed", "task_id", taskID, "error", err)
		return nil, false
	}
	return raw, true
}

// NoopTaskCache disables caching; every read goes to durable storage. Used
// when Redis is unavailable in development.
type NoopTaskCache struct{}

func NewNoopTaskCache() *NoopTaskCache { return &NoopTaskCache{} }

func (NoopTaskCache) Get(context.Context, int64) (*domain.Task, bool)   { return nil, false }
func (NoopTaskCache) Set(context.Context, *domain.Task)                 {}
func (NoopTaskCache) Invalidate(context.Context, int64)                 {}
func (NoopTaskCache) SetPrioritySuggestion(context.Context, int64, any) {}
func (NoopTaskCache) GetPrioritySuggestion(context.Context, int64) (json.RawMessage, bool) {
	return nil, false
}

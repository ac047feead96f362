package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"videoconverter/models"
)

// StatusCache mirrors job state into Redis hashes for external observers.
// The job store stays authoritative; the cache only ever lags behind it.
type StatusCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client, prefix string, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *StatusCache) key(id int64) string {
	return fmt.Sprintf("%sconversion:status:%d", c.prefix, id)
}

// PublishStatus records a lifecycle transition.
func (c *StatusCache) PublishStatus(ctx context.Context, id int64, status models.Status, outputURL, errMsg string) error {
	fields := map[string]interface{}{
		"status":     string(status),
		"output_url": outputURL,
		"error":      errMsg,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if status == models.StatusCompleted {
		fields["progress"] = 100
	}
	return c.write(ctx, id, fields)
}

// PublishProgress records the latest progress value.
func (c *StatusCache) PublishProgress(ctx context.Context, id int64, progress int) error {
	return c.write(ctx, id, map[string]interface{}{
		"progress":   progress,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// Forget drops the cached state of a deleted job.
func (c *StatusCache) Forget(ctx context.Context, id int64) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

// Lookup returns the cached fields for a job, or an empty map when absent.
func (c *StatusCache) Lookup(ctx context.Context, id int64) (map[string]string, error) {
	return c.client.HGetAll(ctx, c.key(id)).Result()
}

// CachedProgress returns the cached progress value and whether one exists.
func (c *StatusCache) CachedProgress(ctx context.Context, id int64) (int, bool, error) {
	raw, err := c.client.HGet(ctx, c.key(id), "progress").Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("cached progress %q: %w", raw, err)
	}
	return v, true, nil
}

func (c *StatusCache) write(ctx context.Context, id int64, fields map[string]interface{}) error {
	key := c.key(id)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

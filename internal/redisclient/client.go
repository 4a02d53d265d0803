package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetJSON decodes the value at key into dst. found is false on a cache miss.
func (c *Client) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v at key as JSON with TTL
func (c *Client) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Delete removes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// MarkEventSeen records a webhook event id
func (c *Client) MarkEventSeen(ctx context.Context, eventID string) error {
	return c.rdb.Set(ctx, fmt.Sprintf(KeyWebhookSeen, eventID), "1", TTLWebhookSeen).Err()
}

// IsEventSeen checks whether a webhook event id was already recorded
func (c *Client) IsEventSeen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf(KeyWebhookSeen, eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkReminderSent sets the reminder mark for an enrollment.
// Returns false if the mark already existed.
func (c *Client) MarkReminderSent(ctx context.Context, enrollmentID string) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf(KeyReminderSent, enrollmentID), "1", TTLReminderSent).Result()
}

// ClearReminderSent removes the reminder mark so the next pass retries
func (c *Client) ClearReminderSent(ctx context.Context, enrollmentID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyReminderSent, enrollmentID)).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf(KeyLock, lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyLock, lockKey)).Err()
}

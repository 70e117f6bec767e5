package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "pos"

// Client is a Redis-backed snapshot store. Each collection lives under
// its own string key.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks connectivity
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

// NewWithClient wraps an existing go-redis client
func NewWithClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Load returns the snapshot stored for key
func (c *Client) Load(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.rdb.Get(ctx, snapshotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return payload, true, nil
}

// Save overwrites the snapshot stored for key
func (c *Client) Save(ctx context.Context, key string, payload []byte) error {
	if err := c.rdb.Set(ctx, snapshotKey(key), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// SaveAll writes every snapshot in a single MULTI/EXEC transaction
func (c *Client) SaveAll(ctx context.Context, snapshots map[string][]byte) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, payload := range snapshots {
			pipe.Set(ctx, snapshotKey(key), payload, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis transaction failed: %w", err)
	}
	return nil
}

func snapshotKey(key string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, key)
}

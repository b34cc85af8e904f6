package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix       = "triage:"
	defaultHistoryLimit = 50
	defaultTTL          = 7 * 24 * time.Hour
)

// Client wraps Redis operations for session lookup and classification history.
type Client struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	ttl    time.Duration
}

// Config holds Redis connection configuration.
type Config struct {
	URL          string        `yaml:"url"`
	Password     string        `yaml:"password"`
	KeyPrefix    string        `yaml:"key_prefix"`
	HistoryLimit int           `yaml:"history_limit"`
	TTL          time.Duration `yaml:"ttl"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg), nil
}

func newClient(rdb *redis.Client, cfg Config) *Client {
	c := &Client{
		rdb:    rdb,
		prefix: cfg.KeyPrefix,
		limit:  int64(cfg.HistoryLimit),
		ttl:    cfg.TTL,
	}
	if c.prefix == "" {
		c.prefix = defaultPrefix
	}
	if c.limit <= 0 {
		c.limit = defaultHistoryLimit
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	return c
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func (c *Client) sessionKey(id string) string {
	return fmt.Sprintf("%ssession:%s", c.prefix, id)
}

func (c *Client) historyKey(sessionID string) string {
	return fmt.Sprintf("%shistory:%s", c.prefix, sessionID)
}

func (c *Client) outcomesKey(sessionID string) string {
	return fmt.Sprintf("%soutcomes:%s", c.prefix, sessionID)
}

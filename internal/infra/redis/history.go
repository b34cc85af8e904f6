package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/triage/internal/core/domain"
)

// Get loads the session stored as JSON under session:<id>.
func (c *Client) Get(ctx context.Context, id string) (*domain.Session, error) {
	data, err := c.rdb.Get(ctx, c.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session failed: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// PutSession stores sess with the configured TTL.
func (c *Client) PutSession(ctx context.Context, sess *domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.rdb.Set(ctx, c.sessionKey(sess.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set session failed: %w", err)
	}
	return nil
}

// Append pushes res onto the session history list and trims it. The MULTI
// block keeps push, trim and expiry atomic for the session.
func (c *Client) Append(ctx context.Context, sessionID string, res *domain.ClassificationResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal classification: %w", err)
	}
	return c.push(ctx, c.historyKey(sessionID), data)
}

// Recent returns up to n results, newest first.
func (c *Client) Recent(ctx context.Context, sessionID string, n int) ([]*domain.ClassificationResult, error) {
	return rangeJSON[domain.ClassificationResult](ctx, c, c.historyKey(sessionID), n)
}

// RecordOutcome pushes o onto the session outcome list.
func (c *Client) RecordOutcome(ctx context.Context, o *domain.RecoveryOutcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	return c.push(ctx, c.outcomesKey(o.SessionID), data)
}

// Outcomes returns up to n outcomes, newest first.
func (c *Client) Outcomes(ctx context.Context, sessionID string, n int) ([]*domain.RecoveryOutcome, error) {
	return rangeJSON[domain.RecoveryOutcome](ctx, c, c.outcomesKey(sessionID), n)
}

func (c *Client) push(ctx context.Context, key string, data []byte) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, c.limit-1)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("lpush %s failed: %w", key, err)
	}
	return nil
}

func rangeJSON[T any](ctx context.Context, c *Client, key string, n int) ([]*T, error) {
	stop := int64(n) - 1
	if n <= 0 {
		stop = -1
	}
	raw, err := c.rdb.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s failed: %w", key, err)
	}

	out := make([]*T, 0, len(raw))
	for _, s := range raw {
		var v T
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s entry: %w", key, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

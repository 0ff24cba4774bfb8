// Package convcache holds the bounded, per-conversation turn history used
// by engine/answering's query-understanding step (§7a). Conversation
// context is advisory: callers must still apply their own tenant_id scope
// to every retrieval, since this cache never substitutes for it.
package convcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Turn is one question/answer exchange.
type Turn struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache bounds history to the last maxTurns per conversation. Redis'
// per-key command ordering gives single-writer semantics per conversation
// ID without an in-process mutex.
type Cache struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

// New connects to Redis at url. maxTurns defaults to 5 per §7a; ttl
// defaults to 24h to bound unattended growth of abandoned conversations.
func New(url string, maxTurns int, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("convcache: parse redis url: %w", err)
	}
	if maxTurns <= 0 {
		maxTurns = 5
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("convcache: connect redis: %w", err)
	}

	return &Cache{client: client, maxTurns: maxTurns, ttl: ttl}, nil
}

func key(tenantID, conversationID string) string {
	return "conv:" + tenantID + ":" + conversationID
}

// History returns up to maxTurns prior turns, oldest first.
func (c *Cache) History(ctx context.Context, tenantID, conversationID string) ([]Turn, error) {
	raw, err := c.client.LRange(ctx, key(tenantID, conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("convcache: read history: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var t Turn
		if err := json.Unmarshal([]byte(raw[i]), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append records a new turn, trimming the list to maxTurns and refreshing
// the TTL. LPUSH+LTRIM on a single key is atomic per Redis command
// ordering, so concurrent appends to the same conversation never interleave.
func (c *Cache) Append(ctx context.Context, tenantID, conversationID string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("convcache: marshal turn: %w", err)
	}
	k := key(tenantID, conversationID)

	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, k, data)
	pipe.LTrim(ctx, k, 0, int64(c.maxTurns-1))
	pipe.Expire(ctx, k, c.ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("convcache: append turn: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Package cache holds the redis-backed recent-message cache used on the hot
// read path. Everything here is best-effort: cache failures are logged by the
// caller and never fail the write.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/chat-core/internal/models"
)

const (
	recentCap = 100
	recentTTL = 24 * time.Hour
)

type Recent struct {
	client *redis.Client
}

func NewRecent(client *redis.Client) *Recent {
	return &Recent{client: client}
}

func key(conversationID string) string { return "chat:" + conversationID + ":recent" }

// Push prepends the message to the conversation's capped recent list.
func (c *Recent) Push(ctx context.Context, m *models.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	k := key(m.ConversationID)
	if err := c.client.LPush(ctx, k, b).Err(); err != nil {
		return err
	}
	_ = c.client.LTrim(ctx, k, 0, recentCap-1).Err()
	return c.client.Expire(ctx, k, recentTTL).Err()
}

// Invalidate drops the cached list, used after edits and deletes.
func (c *Recent) Invalidate(ctx context.Context, conversationID string) error {
	return c.client.Del(ctx, key(conversationID)).Err()
}

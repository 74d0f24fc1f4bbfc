package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/chat-core/internal/models"
)

// RedisPresence keeps presence records in redis, one key per user, overwritten
// on every heartbeat. No TTL: offline is an explicit state, not an expiry.
type RedisPresence struct {
	client *redis.Client
	prefix string
}

func NewRedisPresence(client *redis.Client, prefix string) *RedisPresence {
	return &RedisPresence{client: client, prefix: prefix}
}

func (s *RedisPresence) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *RedisPresence) Set(ctx context.Context, rec *models.PresenceRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(rec.UserID), b, 0).Err()
}

func (s *RedisPresence) Get(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	var rec models.PresenceRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

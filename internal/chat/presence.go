package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/models"
	"github.com/fathima-sithara/chat-core/internal/repository"
)

// PresenceTracker keeps one presence row per user, overwritten on every
// heartbeat, and fans the change out globally. Broadcast scope is global
// because presence is not conversation-scoped.
type PresenceTracker struct {
	store repository.Presence
	bcast Broadcaster
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewPresenceTracker(store repository.Presence, b Broadcaster, log *zap.SugaredLogger) *PresenceTracker {
	return &PresenceTracker{store: store, bcast: b, log: log, now: time.Now}
}

func (t *PresenceTracker) Heartbeat(ctx context.Context, userID string, state models.PresenceState) (*models.PresenceRecord, error) {
	if state != models.PresenceOnline && state != models.PresenceOffline {
		return nil, ErrInvalidState
	}
	rec := &models.PresenceRecord{
		UserID:     userID,
		State:      state,
		LastSeenAt: t.now().UTC(),
	}
	if err := t.store.Set(ctx, rec); err != nil {
		return nil, err
	}
	t.bcast.BroadcastGlobal(EventUserPresence, map[string]any{
		"user_id":   userID,
		"state":     state,
		"timestamp": rec.LastSeenAt,
	})
	return rec, nil
}

func (t *PresenceTracker) Get(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		return nil, asNotFound(err)
	}
	return rec, nil
}

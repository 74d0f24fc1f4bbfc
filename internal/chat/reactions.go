package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/events"
	"github.com/fathima-sithara/chat-core/internal/models"
	"github.com/fathima-sithara/chat-core/internal/repository"
)

// ReactionIndex keeps per-message reactions. One value per (message, user):
// reacting again replaces the previous value.
type ReactionIndex struct {
	store  repository.Store
	bcast  Broadcaster
	pub    events.Publisher
	limits Limits
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewReactionIndex(store repository.Store, b Broadcaster, pub events.Publisher, limits Limits, log *zap.SugaredLogger) *ReactionIndex {
	return &ReactionIndex{store: store, bcast: b, pub: pub, limits: limits, log: log, now: time.Now}
}

func (s *ReactionIndex) target(ctx context.Context, messageID, userID string) (*models.Message, error) {
	msg, err := s.store.Messages.Get(ctx, messageID)
	if err != nil {
		return nil, asNotFound(err)
	}
	if _, err := s.store.Participants.Get(ctx, msg.ConversationID, userID); err != nil {
		return nil, asNotParticipant(err)
	}
	return msg, nil
}

func (s *ReactionIndex) Add(ctx context.Context, messageID, userID, value string) (*models.Reaction, error) {
	value = strings.TrimSpace(value)
	if value == "" || utf8.RuneCountInString(value) > s.limits.MaxReactionLength {
		return nil, fmt.Errorf("%w: value empty or too long", ErrInvalidReaction)
	}
	msg, err := s.target(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, ErrAlreadyDeleted
	}
	rec := &models.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Value:     value,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Reactions.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	s.bcast.BroadcastToConversation(msg.ConversationID, EventMessageReaction, map[string]any{
		"conversation_id": msg.ConversationID,
		"message_id":      messageID,
		"user_id":         userID,
		"value":           value,
		"removed":         false,
	})
	s.publish(ctx, events.ReactionAdded, messageID, rec)
	return rec, nil
}

// Remove deletes the user's reaction; the value must match what was stored.
func (s *ReactionIndex) Remove(ctx context.Context, messageID, userID, value string) error {
	msg, err := s.target(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if err := s.store.Reactions.Delete(ctx, messageID, userID, value); err != nil {
		return asNotFound(err)
	}
	s.bcast.BroadcastToConversation(msg.ConversationID, EventMessageReaction, map[string]any{
		"conversation_id": msg.ConversationID,
		"message_id":      messageID,
		"user_id":         userID,
		"value":           value,
		"removed":         true,
	})
	s.publish(ctx, events.ReactionRemoved, messageID, map[string]any{
		"message_id": messageID,
		"user_id":    userID,
		"value":      value,
	})
	return nil
}

func (s *ReactionIndex) ListFor(ctx context.Context, messageID, requesterID string) ([]*models.Reaction, error) {
	if _, err := s.target(ctx, messageID, requesterID); err != nil {
		return nil, err
	}
	return s.store.Reactions.ListByMessage(ctx, messageID)
}

func (s *ReactionIndex) publish(ctx context.Context, event, key string, payload any) {
	if err := s.pub.Publish(ctx, event, key, payload); err != nil {
		s.log.Warnw("publish failed", "event", event, "err", err)
	}
}

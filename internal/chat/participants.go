package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/models"
	"github.com/fathima-sithara/chat-core/internal/repository"
)

// ParticipantRegistry manages per-conversation membership state: typing and
// read receipts, muting, and role changes.
type ParticipantRegistry struct {
	store repository.Store
	bcast Broadcaster
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewParticipantRegistry(store repository.Store, b Broadcaster, log *zap.SugaredLogger) *ParticipantRegistry {
	return &ParticipantRegistry{store: store, bcast: b, log: log, now: time.Now}
}

func (r *ParticipantRegistry) participant(ctx context.Context, conversationID, userID string) (*models.Participant, error) {
	p, err := r.store.Participants.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, asNotParticipant(err)
	}
	return p, nil
}

// SetTyping records the typing flag and fans it out. Typing stays allowed on
// locked conversations.
func (r *ParticipantRegistry) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	if _, err := r.participant(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := r.store.Participants.SetTyping(ctx, conversationID, userID, isTyping); err != nil {
		return asNotParticipant(err)
	}
	r.bcast.BroadcastToConversation(conversationID, EventUserTyping, map[string]any{
		"user_id":         userID,
		"conversation_id": conversationID,
		"is_typing":       isTyping,
	})
	return nil
}

// MarkRead updates the participant's read receipt. A nil timestamp means now;
// a future timestamp is rejected.
func (r *ParticipantRegistry) MarkRead(ctx context.Context, conversationID, userID string, at *time.Time) error {
	if _, err := r.participant(ctx, conversationID, userID); err != nil {
		return err
	}
	now := r.now().UTC()
	ts := now
	if at != nil {
		if at.After(now) {
			return ErrFutureTimestamp
		}
		ts = at.UTC()
	}
	return asNotParticipant(r.store.Participants.SetLastRead(ctx, conversationID, userID, ts))
}

func (r *ParticipantRegistry) SetMute(ctx context.Context, conversationID, userID string, isMuted bool) error {
	if _, err := r.participant(ctx, conversationID, userID); err != nil {
		return err
	}
	return asNotParticipant(r.store.Participants.SetMuted(ctx, conversationID, userID, isMuted))
}

// SetRole changes the target's role. Only owners and moderators may assign
// roles; assigning owner transfers ownership and demotes the current owner to
// member in the same transaction, keeping exactly one owner per group.
func (r *ParticipantRegistry) SetRole(ctx context.Context, conversationID, actorID, targetID string, role models.Role) error {
	conv, err := r.store.Conversations.Get(ctx, conversationID)
	if err != nil {
		return asNotFound(err)
	}
	if conv.Type == models.ConversationDirect {
		return ErrUnsupportedForDirect
	}
	actor, err := r.participant(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleOwner && actor.Role != models.RoleModerator {
		return ErrInsufficientPermissions
	}
	if conv.IsLocked {
		return ErrConversationLocked
	}
	if role == models.RoleOwner && actor.Role != models.RoleOwner {
		return ErrInsufficientPermissions
	}
	target, err := r.store.Participants.Get(ctx, conversationID, targetID)
	if err != nil {
		return asNotParticipant(err)
	}
	if target.Role == models.RoleOwner && role != models.RoleOwner {
		// the owner seat only moves via a transfer
		return ErrInsufficientPermissions
	}

	err = r.store.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		if role == models.RoleOwner && actorID != targetID {
			if err := r.store.Participants.SetRole(ctx, conversationID, actorID, models.RoleMember); err != nil {
				return err
			}
		}
		return r.store.Participants.SetRole(ctx, conversationID, targetID, role)
	})
	if err != nil {
		return asNotParticipant(err)
	}
	r.bcast.BroadcastToConversation(conversationID, EventConversationUpdated, map[string]any{
		"conversation_id": conversationID,
		"user_id":         targetID,
		"role":            role,
	})
	return nil
}

// List returns all participant rows of a conversation, requester-guarded.
func (r *ParticipantRegistry) List(ctx context.Context, conversationID, requesterID string) ([]*models.Participant, error) {
	if _, err := r.participant(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}
	return r.store.Participants.List(ctx, conversationID)
}

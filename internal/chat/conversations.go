package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/events"
	"github.com/fathima-sithara/chat-core/internal/models"
	"github.com/fathima-sithara/chat-core/internal/repository"
)

// ConversationStore owns conversation lifecycle: creation, membership,
// metadata and lock state.
type ConversationStore struct {
	store repository.Store
	bcast Broadcaster
	pub   events.Publisher
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewConversationStore(store repository.Store, b Broadcaster, pub events.Publisher, log *zap.SugaredLogger) *ConversationStore {
	return &ConversationStore{store: store, bcast: b, pub: pub, log: log, now: time.Now}
}

// CreateDirect returns the existing direct conversation between the two users
// if one exists; creation is idempotent per unordered pair.
func (s *ConversationStore) CreateDirect(ctx context.Context, creatorID, otherID string) (*models.Conversation, error) {
	if otherID == "" || otherID == creatorID {
		return nil, ErrInvalidMembers
	}
	if existing, err := s.store.Conversations.FindDirect(ctx, creatorID, otherID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNoDocument) {
		return nil, err
	}

	now := s.now().UTC()
	conv := &models.Conversation{
		ID:          uuid.NewString(),
		Type:        models.ConversationDirect,
		DirectKey:   models.DirectPairKey(creatorID, otherID),
		MemberIDs:   []string{creatorID, otherID},
		MemberCount: 2,
		CreatedAt:   now,
	}
	err := s.store.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Conversations.Insert(ctx, conv); err != nil {
			return err
		}
		for _, uid := range conv.MemberIDs {
			p := &models.Participant{
				ConversationID: conv.ID,
				UserID:         uid,
				Role:           models.RoleMember,
				JoinedAt:       now,
			}
			if err := s.store.Participants.Insert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// lost the insert race; the winner's row is the conversation
			return s.store.Conversations.FindDirect(ctx, creatorID, otherID)
		}
		return nil, err
	}
	s.publish(ctx, events.ConversationCreated, conv.ID, conv)
	return conv, nil
}

// CreateGroup creates a group conversation with the creator as owner. The
// invited member set plus the creator must reach three users.
func (s *ConversationStore) CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidTitle
	}
	members := []string{creatorID}
	seen := map[string]bool{creatorID: true}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 3 {
		return nil, ErrInsufficientMembers
	}

	now := s.now().UTC()
	conv := &models.Conversation{
		ID:          uuid.NewString(),
		Type:        models.ConversationGroup,
		Title:       title,
		MemberIDs:   members,
		MemberCount: len(members),
		CreatedAt:   now,
	}
	err := s.store.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Conversations.Insert(ctx, conv); err != nil {
			return err
		}
		for _, uid := range members {
			role := models.RoleMember
			if uid == creatorID {
				role = models.RoleOwner
			}
			p := &models.Participant{
				ConversationID: conv.ID,
				UserID:         uid,
				Role:           role,
				JoinedAt:       now,
			}
			if err := s.store.Participants.Insert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.ConversationCreated, conv.ID, conv)
	return conv, nil
}

func (s *ConversationStore) Get(ctx context.Context, id, requesterID string) (*models.Conversation, error) {
	conv, err := s.store.Conversations.Get(ctx, id)
	if err != nil {
		return nil, asNotFound(err)
	}
	if !conv.HasMember(requesterID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// MetadataUpdate carries the mutable conversation fields; nil means unchanged.
type MetadataUpdate struct {
	Title *string
	Icon  *string
}

func (s *ConversationStore) UpdateMetadata(ctx context.Context, id, requesterID string, upd MetadataUpdate) error {
	conv, err := s.store.Conversations.Get(ctx, id)
	if err != nil {
		return asNotFound(err)
	}
	p, err := s.store.Participants.Get(ctx, id, requesterID)
	if err != nil {
		return asNotParticipant(err)
	}
	if p.Role != models.RoleOwner && p.Role != models.RoleModerator {
		return ErrInsufficientPermissions
	}
	if upd.Title != nil {
		if conv.Type == models.ConversationDirect {
			return ErrUnsupportedForDirect
		}
		trimmed := strings.TrimSpace(*upd.Title)
		if trimmed == "" {
			return ErrInvalidTitle
		}
		upd.Title = &trimmed
	}
	err = s.store.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		return s.store.Conversations.SetMetadata(ctx, id, upd.Title, upd.Icon)
	})
	if err != nil {
		return asNotFound(err)
	}
	s.bcast.BroadcastToConversation(id, EventConversationUpdated, map[string]any{
		"conversation_id": id,
		"title":           upd.Title,
		"icon":            upd.Icon,
	})
	return nil
}

// SetLock is the moderation hook. The actor is trusted: role checks happen in
// the admin surface that calls this.
func (s *ConversationStore) SetLock(ctx context.Context, id string, locked bool, reason, actorID string) error {
	if _, err := s.store.Conversations.Get(ctx, id); err != nil {
		return asNotFound(err)
	}
	if err := s.store.Conversations.SetLock(ctx, id, locked, reason); err != nil {
		return asNotFound(err)
	}
	payload := map[string]any{
		"conversation_id": id,
		"is_locked":       locked,
		"reason":          reason,
		"actor_id":        actorID,
	}
	s.bcast.BroadcastToConversation(id, EventConversationLocked, payload)
	s.publish(ctx, events.ConversationLocked, id, payload)
	return nil
}

func (s *ConversationStore) Join(ctx context.Context, id, userID string) error {
	conv, err := s.store.Conversations.Get(ctx, id)
	if err != nil {
		return asNotFound(err)
	}
	if conv.Type == models.ConversationDirect {
		return ErrUnsupportedForDirect
	}
	if conv.HasMember(userID) {
		return nil
	}
	now := s.now().UTC()
	err = s.store.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Conversations.AddMember(ctx, id, userID); err != nil {
			return err
		}
		return s.store.Participants.Insert(ctx, &models.Participant{
			ConversationID: id,
			UserID:         userID,
			Role:           models.RoleMember,
			JoinedAt:       now,
		})
	})
	if err != nil {
		return err
	}
	s.bcast.BroadcastToConversation(id, EventConversationUpdated, map[string]any{
		"conversation_id": id,
		"user_id":         userID,
		"change":          "joined",
	})
	return nil
}

func (s *ConversationStore) Leave(ctx context.Context, id, userID string) error {
	conv, err := s.store.Conversations.Get(ctx, id)
	if err != nil {
		return asNotFound(err)
	}
	if conv.Type == models.ConversationDirect {
		return ErrUnsupportedForDirect
	}
	p, err := s.store.Participants.Get(ctx, id, userID)
	if err != nil {
		return asNotParticipant(err)
	}
	if p.Role == models.RoleOwner {
		return ErrOwnerCannotLeave
	}
	err = s.store.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Conversations.RemoveMember(ctx, id, userID); err != nil {
			return err
		}
		return s.store.Participants.Delete(ctx, id, userID)
	})
	if err != nil {
		return err
	}
	s.bcast.BroadcastToConversation(id, EventUserRemoved, map[string]any{
		"conversation_id": id,
		"user_id":         userID,
	})
	return nil
}

func (s *ConversationStore) publish(ctx context.Context, event, key string, payload any) {
	if err := s.pub.Publish(ctx, event, key, payload); err != nil {
		s.log.Warnw("publish failed", "event", event, "err", err)
	}
}

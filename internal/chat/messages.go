package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/cache"
	"github.com/fathima-sithara/chat-core/internal/events"
	"github.com/fathima-sithara/chat-core/internal/metrics"
	"github.com/fathima-sithara/chat-core/internal/models"
	"github.com/fathima-sithara/chat-core/internal/repository"
)

// MessageStore owns the message lifecycle: send, edit, soft delete, and
// cursor-paginated listing.
type MessageStore struct {
	store  repository.Store
	bcast  Broadcaster
	pub    events.Publisher
	recent *cache.Recent // optional
	limits Limits
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewMessageStore(store repository.Store, b Broadcaster, pub events.Publisher, recent *cache.Recent, limits Limits, log *zap.SugaredLogger) *MessageStore {
	return &MessageStore{store: store, bcast: b, pub: pub, recent: recent, limits: limits, log: log, now: time.Now}
}

// SendPayload is the tagged union of message content: Text for text messages,
// Media for image/audio. Exactly one side must be populated, matching Type.
type SendPayload struct {
	Type  models.MessageType
	Text  string
	Media *models.MediaDescriptor
}

func (s *MessageStore) validatePayload(p SendPayload) error {
	switch p.Type {
	case models.MessageText:
		if p.Media != nil {
			return fmt.Errorf("%w: text message carries media", ErrInvalidPayload)
		}
		text := strings.TrimSpace(p.Text)
		if text == "" {
			return fmt.Errorf("%w: empty text", ErrInvalidPayload)
		}
		if utf8.RuneCountInString(p.Text) > s.limits.MaxTextLength {
			return fmt.Errorf("%w: text too long", ErrInvalidPayload)
		}
	case models.MessageImage, models.MessageAudio:
		if p.Text != "" {
			return fmt.Errorf("%w: media message carries text", ErrInvalidPayload)
		}
		if p.Media == nil || p.Media.URL == "" || p.Media.Mime == "" || p.Media.Size <= 0 {
			return fmt.Errorf("%w: media requires url, mime and size", ErrInvalidPayload)
		}
		cap := s.limits.MaxImageBytes
		if p.Type == models.MessageAudio {
			cap = s.limits.MaxAudioBytes
		}
		if p.Media.Size > cap {
			return fmt.Errorf("%w: media too large", ErrInvalidPayload)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPayload, p.Type)
	}
	return nil
}

// Send persists a message and bumps the conversation's last_message_at in the
// same transaction, then broadcasts new_message to the room.
func (s *MessageStore) Send(ctx context.Context, conversationID, authorID string, payload SendPayload) (*models.Message, error) {
	conv, err := s.store.Conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, asNotFound(err)
	}
	if _, err := s.store.Participants.Get(ctx, conversationID, authorID); err != nil {
		return nil, asNotParticipant(err)
	}
	if conv.IsLocked {
		return nil, ErrConversationLocked
	}
	if err := s.validatePayload(payload); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		AuthorID:       authorID,
		Type:           payload.Type,
		Text:           payload.Text,
		Media:          payload.Media,
		CreatedAt:      now,
	}
	err = s.store.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Messages.Insert(ctx, msg); err != nil {
			return err
		}
		return s.store.Conversations.ApplyLastMessage(ctx, conversationID, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesSent.Inc()
	s.cachePush(ctx, msg)
	s.bcast.BroadcastToConversation(conversationID, EventNewMessage, map[string]any{
		"conversation_id": conversationID,
		"message":         msg,
		"timestamp":       now,
	})
	s.publish(ctx, events.MessageSent, msg.ID, msg)
	return msg, nil
}

// Edit rewrites a text message's body. Author-only, never on deleted messages,
// and only strictly before created_at+EditWindow; edited_at does not extend
// the window.
func (s *MessageStore) Edit(ctx context.Context, messageID, actorID, newText string) (*models.Message, error) {
	msg, err := s.store.Messages.Get(ctx, messageID)
	if err != nil {
		return nil, asNotFound(err)
	}
	if msg.AuthorID != actorID {
		return nil, ErrForbidden
	}
	if msg.IsDeleted {
		return nil, ErrAlreadyDeleted
	}
	if msg.Type != models.MessageText {
		return nil, fmt.Errorf("%w: only text messages can be edited", ErrInvalidPayload)
	}
	now := s.now().UTC()
	if !now.Before(msg.CreatedAt.Add(s.limits.EditWindow)) {
		return nil, ErrEditWindowExpired
	}
	if err := s.validatePayload(SendPayload{Type: models.MessageText, Text: newText}); err != nil {
		return nil, err
	}
	if err := s.store.Messages.SetText(ctx, messageID, newText, now); err != nil {
		return nil, asNotFound(err)
	}
	msg.Text = newText
	msg.EditedAt = &now

	s.cacheInvalidate(ctx, msg.ConversationID)
	s.bcast.BroadcastToConversation(msg.ConversationID, EventMessageUpdated, map[string]any{
		"conversation_id": msg.ConversationID,
		"message":         msg,
	})
	s.publish(ctx, events.MessageEdited, msg.ID, msg)
	return msg, nil
}

// SoftDelete flags a message deleted. Allowed for the author, and for
// moderators/owners of the conversation. Reactions stay in place, orphaned
// but inert.
func (s *MessageStore) SoftDelete(ctx context.Context, messageID, actorID string) error {
	msg, err := s.store.Messages.Get(ctx, messageID)
	if err != nil {
		return asNotFound(err)
	}
	if msg.IsDeleted {
		return ErrAlreadyDeleted
	}
	if msg.AuthorID != actorID {
		p, err := s.store.Participants.Get(ctx, msg.ConversationID, actorID)
		if err != nil {
			if errors.Is(err, repository.ErrNoDocument) {
				return ErrForbidden
			}
			return err
		}
		if p.Role != models.RoleOwner && p.Role != models.RoleModerator {
			return ErrForbidden
		}
	}
	if err := s.store.Messages.MarkDeleted(ctx, messageID); err != nil {
		return asNotFound(err)
	}

	s.cacheInvalidate(ctx, msg.ConversationID)
	s.bcast.BroadcastToConversation(msg.ConversationID, EventMessageDeleted, map[string]any{
		"conversation_id": msg.ConversationID,
		"message_id":      messageID,
		"actor_id":        actorID,
	})
	s.publish(ctx, events.MessageDeleted, messageID, map[string]any{"message_id": messageID, "actor_id": actorID})
	return nil
}

// ListOptions controls pagination. Order is newest-first unless Ascending.
type ListOptions struct {
	PageSize  int
	Cursor    string
	Ascending bool
}

// MessagePage is one page plus the cursor for the next.
type MessagePage struct {
	Messages   []*models.Message `json:"messages"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func (s *MessageStore) List(ctx context.Context, conversationID, requesterID string, opts ListOptions) (*MessagePage, error) {
	if _, err := s.store.Participants.Get(ctx, conversationID, requesterID); err != nil {
		return nil, asNotParticipant(err)
	}
	size := opts.PageSize
	if size == 0 {
		size = s.limits.DefaultPageSize
	}
	if size < 1 || size > s.limits.MaxPageSize {
		return nil, ErrInvalidPageSize
	}
	page := repository.MessagePage{Limit: size, Ascending: opts.Ascending}
	if opts.Cursor != "" {
		at, id, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: bad cursor", ErrInvalidPayload)
		}
		page.CursorAt = at
		page.CursorID = id
	}
	msgs, err := s.store.Messages.List(ctx, conversationID, page)
	if err != nil {
		return nil, err
	}
	out := &MessagePage{Messages: msgs}
	if len(msgs) == size {
		last := msgs[len(msgs)-1]
		out.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return out, nil
}

func encodeCursor(at time.Time, id string) string {
	raw := at.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	at, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return at, parts[1], nil
}

func (s *MessageStore) cachePush(ctx context.Context, m *models.Message) {
	if s.recent == nil {
		return
	}
	if err := s.recent.Push(ctx, m); err != nil {
		s.log.Warnw("recent cache push failed", "conversation", m.ConversationID, "err", err)
	}
}

func (s *MessageStore) cacheInvalidate(ctx context.Context, conversationID string) {
	if s.recent == nil {
		return
	}
	if err := s.recent.Invalidate(ctx, conversationID); err != nil {
		s.log.Warnw("recent cache invalidate failed", "conversation", conversationID, "err", err)
	}
}

func (s *MessageStore) publish(ctx context.Context, event, key string, payload any) {
	if err := s.pub.Publish(ctx, event, key, payload); err != nil {
		s.log.Warnw("publish failed", "event", event, "err", err)
	}
}

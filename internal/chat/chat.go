// Package chat implements the conversation, participant, message, reaction and
// presence components of the realtime chat core. Storage and fan-out are
// injected: repositories persist, the Broadcaster pushes to socket rooms, the
// event Publisher feeds downstream consumers.
package chat

import (
	"errors"
	"time"

	"github.com/fathima-sithara/chat-core/internal/repository"
)

// Server→client event names carried over the realtime gateway.
const (
	EventNewMessage          = "new_message"
	EventMessageUpdated      = "message_updated"
	EventMessageDeleted      = "message_deleted"
	EventMessageReaction     = "message_reaction"
	EventUserTyping          = "user_typing"
	EventUserPresence        = "user_presence"
	EventConversationUpdated = "conversation_updated"
	EventConversationLocked  = "conversation_locked"
	EventUserRemoved         = "user_removed"
)

// Broadcaster is the outbound fan-out surface of the realtime gateway.
// Both methods are fire-and-forget.
type Broadcaster interface {
	BroadcastToConversation(conversationID, event string, payload any)
	BroadcastGlobal(event string, payload any)
}

// NopBroadcaster drops everything; used in tests.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastToConversation(conversationID, event string, payload any) {}
func (NopBroadcaster) BroadcastGlobal(event string, payload any)                         {}

// Limits bounds user-supplied content.
type Limits struct {
	EditWindow        time.Duration
	MaxTextLength     int
	MaxImageBytes     int64
	MaxAudioBytes     int64
	MaxReactionLength int
	DefaultPageSize   int
	MaxPageSize       int
}

func DefaultLimits() Limits {
	return Limits{
		EditWindow:        15 * time.Minute,
		MaxTextLength:     4000,
		MaxImageBytes:     10 << 20,
		MaxAudioBytes:     20 << 20,
		MaxReactionLength: 32,
		DefaultPageSize:   20,
		MaxPageSize:       50,
	}
}

func asNotFound(err error) error {
	if errors.Is(err, repository.ErrNoDocument) {
		return ErrNotFound
	}
	return err
}

func asNotParticipant(err error) error {
	if errors.Is(err, repository.ErrNoDocument) {
		return ErrNotParticipant
	}
	return err
}

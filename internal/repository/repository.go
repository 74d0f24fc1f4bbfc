// Package repository defines the durable-store boundary for the chat core.
// Implementations: mongo (production), memory (tests/dev), redis (presence).
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/chat-core/internal/models"
)

// ErrNoDocument is returned by lookups that match nothing.
var ErrNoDocument = errors.New("no document")

// ErrDuplicateKey is returned by inserts that violate a uniqueness constraint,
// e.g. two direct conversations for the same pair.
var ErrDuplicateKey = errors.New("duplicate key")

type Conversations interface {
	Insert(ctx context.Context, c *models.Conversation) error
	Get(ctx context.Context, id string) (*models.Conversation, error)
	// FindDirect looks up the direct conversation between two users,
	// order-insensitive.
	FindDirect(ctx context.Context, userA, userB string) (*models.Conversation, error)
	SetMetadata(ctx context.Context, id string, title, icon *string) error
	SetLock(ctx context.Context, id string, locked bool, reason string) error
	// ApplyLastMessage moves last_message_at forward; an older timestamp is a
	// no-op so concurrent senders never regress the field.
	ApplyLastMessage(ctx context.Context, id string, at time.Time) error
	AddMember(ctx context.Context, id, userID string) error
	RemoveMember(ctx context.Context, id, userID string) error
}

type Participants interface {
	Insert(ctx context.Context, p *models.Participant) error
	Get(ctx context.Context, conversationID, userID string) (*models.Participant, error)
	List(ctx context.Context, conversationID string) ([]*models.Participant, error)
	SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error
	SetMuted(ctx context.Context, conversationID, userID string, isMuted bool) error
	SetLastRead(ctx context.Context, conversationID, userID string, at time.Time) error
	SetRole(ctx context.Context, conversationID, userID string, role models.Role) error
	Delete(ctx context.Context, conversationID, userID string) error
}

// MessagePage is a keyset page over (created_at, _id). When CursorID is set the
// page starts strictly after that position in iteration order.
type MessagePage struct {
	Limit     int
	Ascending bool
	CursorAt  time.Time
	CursorID  string
}

type Messages interface {
	Insert(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	SetText(ctx context.Context, id, text string, editedAt time.Time) error
	MarkDeleted(ctx context.Context, id string) error
	List(ctx context.Context, conversationID string, page MessagePage) ([]*models.Message, error)
}

type Reactions interface {
	// Upsert replaces any existing (message, user) row.
	Upsert(ctx context.Context, r *models.Reaction) error
	// Delete removes the row only when the stored value matches; otherwise
	// ErrNoDocument.
	Delete(ctx context.Context, messageID, userID, value string) error
	ListByMessage(ctx context.Context, messageID string) ([]*models.Reaction, error)
}

type Presence interface {
	Set(ctx context.Context, rec *models.PresenceRecord) error
	Get(ctx context.Context, userID string) (*models.PresenceRecord, error)
}

// TxnRunner executes fn atomically with respect to other transactions. The
// mongo implementation retries on transient conflicts (optimistic semantics).
type TxnRunner interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the per-entity repositories behind one wiring point.
type Store struct {
	Conversations Conversations
	Participants  Participants
	Messages      Messages
	Reactions     Reactions
	Presence      Presence
	Txn           TxnRunner
}

package models

import "time"

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type Role string

const (
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

type Conversation struct {
	ID            string           `bson:"_id,omitempty" json:"id"`
	Type          ConversationType `bson:"type" json:"type"`
	DirectKey     string           `bson:"direct_key,omitempty" json:"-"`
	Title         string           `bson:"title,omitempty" json:"title,omitempty"`
	Icon          string           `bson:"icon,omitempty" json:"icon,omitempty"`
	MemberIDs     []string         `bson:"member_ids" json:"member_ids"`
	MemberCount   int              `bson:"member_count" json:"member_count"`
	LastMessageAt time.Time        `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
	IsLocked      bool             `bson:"is_locked" json:"is_locked"`
	LockReason    string           `bson:"lock_reason,omitempty" json:"lock_reason,omitempty"`
	CreatedAt     time.Time        `bson:"created_at" json:"created_at"`
}

// DirectPairKey is the canonical identity of a direct conversation: the two
// member ids sorted and joined. A unique index on the stored key collapses
// concurrent creates for the same pair onto one row.
func DirectPairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (c *Conversation) HasMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Participant is keyed by (ConversationID, UserID).
type Participant struct {
	ConversationID string     `bson:"conversation_id" json:"conversation_id"`
	UserID         string     `bson:"user_id" json:"user_id"`
	Nickname       string     `bson:"nickname,omitempty" json:"nickname,omitempty"`
	Role           Role       `bson:"role" json:"role"`
	JoinedAt       time.Time  `bson:"joined_at" json:"joined_at"`
	LastReadAt     *time.Time `bson:"last_read_at,omitempty" json:"last_read_at,omitempty"`
	IsTyping       bool       `bson:"is_typing" json:"is_typing"`
	IsMuted        bool       `bson:"is_muted" json:"is_muted"`
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
)

func (t MessageType) IsMedia() bool { return t == MessageImage || t == MessageAudio }

// MediaDescriptor describes the stored media object for image/audio messages.
type MediaDescriptor struct {
	URL    string `bson:"url" json:"url"`
	Mime   string `bson:"mime" json:"mime"`
	Size   int64  `bson:"size" json:"size"`
	Width  int    `bson:"width,omitempty" json:"width,omitempty"`
	Height int    `bson:"height,omitempty" json:"height,omitempty"`
}

// Message carries exactly one of Text or Media, matching Type.
type Message struct {
	ID             string           `bson:"_id,omitempty" json:"id"`
	ConversationID string           `bson:"conversation_id" json:"conversation_id"`
	AuthorID       string           `bson:"author_id" json:"author_id"`
	Type           MessageType      `bson:"type" json:"type"`
	Text           string           `bson:"text,omitempty" json:"text,omitempty"`
	Media          *MediaDescriptor `bson:"media,omitempty" json:"media,omitempty"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
	EditedAt       *time.Time       `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	IsDeleted      bool             `bson:"is_deleted" json:"is_deleted"`
}

// Reaction is keyed by (MessageID, UserID); a re-react replaces Value.
type Reaction struct {
	MessageID string    `bson:"message_id" json:"message_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Value     string    `bson:"value" json:"value"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type PresenceState string

const (
	PresenceOnline  PresenceState = "online"
	PresenceOffline PresenceState = "offline"
)

// PresenceRecord is a single row per user, overwritten on every heartbeat.
type PresenceRecord struct {
	UserID     string        `bson:"_id" json:"user_id"`
	State      PresenceState `bson:"state" json:"state"`
	LastSeenAt time.Time     `bson:"last_seen_at" json:"last_seen_at"`
}

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/chat-core/internal/models"
)

// Memory is a map-backed Store used by tests and local development. Writes are
// guarded by a single RWMutex; RunTransaction serializes composite updates with
// a dedicated mutex so two read-modify-write sequences cannot interleave.
type Memory struct {
	mu  sync.RWMutex
	txn sync.Mutex

	conversations map[string]models.Conversation
	participants  map[string]map[string]models.Participant // convID -> userID
	messages      map[string]models.Message
	reactions     map[string]map[string]models.Reaction // messageID -> userID
	presence      map[string]models.PresenceRecord
}

func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]models.Conversation),
		participants:  make(map[string]map[string]models.Participant),
		messages:      make(map[string]models.Message),
		reactions:     make(map[string]map[string]models.Reaction),
		presence:      make(map[string]models.PresenceRecord),
	}
}

// Stores returns the bundle view of the memory store.
func (m *Memory) Stores() Store {
	return Store{
		Conversations: memConversations{m},
		Participants:  memParticipants{m},
		Messages:      memMessages{m},
		Reactions:     memReactions{m},
		Presence:      memPresence{m},
		Txn:           m,
	}
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txn.Lock()
	defer m.txn.Unlock()
	return fn(ctx)
}

type memConversations struct{ m *Memory }

func (r memConversations) Insert(ctx context.Context, c *models.Conversation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if c.DirectKey != "" {
		for _, existing := range r.m.conversations {
			if existing.DirectKey == c.DirectKey {
				return ErrDuplicateKey
			}
		}
	}
	cp := *c
	cp.MemberIDs = append([]string(nil), c.MemberIDs...)
	r.m.conversations[c.ID] = cp
	return nil
}

func (r memConversations) Get(ctx context.Context, id string) (*models.Conversation, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	c, ok := r.m.conversations[id]
	if !ok {
		return nil, ErrNoDocument
	}
	cp := c
	cp.MemberIDs = append([]string(nil), c.MemberIDs...)
	return &cp, nil
}

func (r memConversations) FindDirect(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	key := models.DirectPairKey(userA, userB)
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, c := range r.m.conversations {
		if c.DirectKey == key {
			cp := c
			cp.MemberIDs = append([]string(nil), c.MemberIDs...)
			return &cp, nil
		}
	}
	return nil, ErrNoDocument
}

func (r memConversations) update(id string, mutate func(*models.Conversation)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.conversations[id]
	if !ok {
		return ErrNoDocument
	}
	mutate(&c)
	r.m.conversations[id] = c
	return nil
}

func (r memConversations) SetMetadata(ctx context.Context, id string, title, icon *string) error {
	return r.update(id, func(c *models.Conversation) {
		if title != nil {
			c.Title = *title
		}
		if icon != nil {
			c.Icon = *icon
		}
	})
}

func (r memConversations) SetLock(ctx context.Context, id string, locked bool, reason string) error {
	return r.update(id, func(c *models.Conversation) {
		c.IsLocked = locked
		c.LockReason = reason
		if !locked {
			c.LockReason = ""
		}
	})
}

func (r memConversations) ApplyLastMessage(ctx context.Context, id string, at time.Time) error {
	return r.update(id, func(c *models.Conversation) {
		if at.After(c.LastMessageAt) {
			c.LastMessageAt = at
		}
	})
}

func (r memConversations) AddMember(ctx context.Context, id, userID string) error {
	return r.update(id, func(c *models.Conversation) {
		if !c.HasMember(userID) {
			c.MemberIDs = append(append([]string(nil), c.MemberIDs...), userID)
			c.MemberCount = len(c.MemberIDs)
		}
	})
}

func (r memConversations) RemoveMember(ctx context.Context, id, userID string) error {
	return r.update(id, func(c *models.Conversation) {
		members := make([]string, 0, len(c.MemberIDs))
		for _, mid := range c.MemberIDs {
			if mid != userID {
				members = append(members, mid)
			}
		}
		c.MemberIDs = members
		c.MemberCount = len(members)
	})
}

type memParticipants struct{ m *Memory }

func (r memParticipants) Insert(ctx context.Context, p *models.Participant) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.participants[p.ConversationID] == nil {
		r.m.participants[p.ConversationID] = make(map[string]models.Participant)
	}
	r.m.participants[p.ConversationID][p.UserID] = *p
	return nil
}

func (r memParticipants) Get(ctx context.Context, conversationID, userID string) (*models.Participant, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p, ok := r.m.participants[conversationID][userID]
	if !ok {
		return nil, ErrNoDocument
	}
	cp := p
	return &cp, nil
}

func (r memParticipants) List(ctx context.Context, conversationID string) ([]*models.Participant, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	rows := r.m.participants[conversationID]
	out := make([]*models.Participant, 0, len(rows))
	for _, p := range rows {
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r memParticipants) update(conversationID, userID string, mutate func(*models.Participant)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.participants[conversationID][userID]
	if !ok {
		return ErrNoDocument
	}
	mutate(&p)
	r.m.participants[conversationID][userID] = p
	return nil
}

func (r memParticipants) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	return r.update(conversationID, userID, func(p *models.Participant) { p.IsTyping = isTyping })
}

func (r memParticipants) SetMuted(ctx context.Context, conversationID, userID string, isMuted bool) error {
	return r.update(conversationID, userID, func(p *models.Participant) { p.IsMuted = isMuted })
}

func (r memParticipants) SetLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	return r.update(conversationID, userID, func(p *models.Participant) { p.LastReadAt = &at })
}

func (r memParticipants) SetRole(ctx context.Context, conversationID, userID string, role models.Role) error {
	return r.update(conversationID, userID, func(p *models.Participant) { p.Role = role })
}

func (r memParticipants) Delete(ctx context.Context, conversationID, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.participants[conversationID][userID]; !ok {
		return ErrNoDocument
	}
	delete(r.m.participants[conversationID], userID)
	return nil
}

type memMessages struct{ m *Memory }

func (r memMessages) Insert(ctx context.Context, msg *models.Message) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.messages[msg.ID] = *msg
	return nil
}

func (r memMessages) Get(ctx context.Context, id string) (*models.Message, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	msg, ok := r.m.messages[id]
	if !ok {
		return nil, ErrNoDocument
	}
	cp := msg
	return &cp, nil
}

func (r memMessages) SetText(ctx context.Context, id, text string, editedAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	msg, ok := r.m.messages[id]
	if !ok {
		return ErrNoDocument
	}
	msg.Text = text
	msg.EditedAt = &editedAt
	r.m.messages[id] = msg
	return nil
}

func (r memMessages) MarkDeleted(ctx context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	msg, ok := r.m.messages[id]
	if !ok {
		return ErrNoDocument
	}
	msg.IsDeleted = true
	r.m.messages[id] = msg
	return nil
}

func messageBefore(a, b *models.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (r memMessages) List(ctx context.Context, conversationID string, page MessagePage) ([]*models.Message, error) {
	r.m.mu.RLock()
	all := make([]*models.Message, 0)
	for _, msg := range r.m.messages {
		if msg.ConversationID == conversationID {
			cp := msg
			all = append(all, &cp)
		}
	}
	r.m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if page.Ascending {
			return messageBefore(all[i], all[j])
		}
		return messageBefore(all[j], all[i])
	})

	out := make([]*models.Message, 0, page.Limit)
	past := page.CursorID == ""
	for _, msg := range all {
		if !past {
			if msg.ID == page.CursorID {
				past = true
			}
			continue
		}
		out = append(out, msg)
		if page.Limit > 0 && len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

type memReactions struct{ m *Memory }

func (r memReactions) Upsert(ctx context.Context, rec *models.Reaction) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.reactions[rec.MessageID] == nil {
		r.m.reactions[rec.MessageID] = make(map[string]models.Reaction)
	}
	r.m.reactions[rec.MessageID][rec.UserID] = *rec
	return nil
}

func (r memReactions) Delete(ctx context.Context, messageID, userID, value string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	row, ok := r.m.reactions[messageID][userID]
	if !ok || row.Value != value {
		return ErrNoDocument
	}
	delete(r.m.reactions[messageID], userID)
	return nil
}

func (r memReactions) ListByMessage(ctx context.Context, messageID string) ([]*models.Reaction, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	rows := r.m.reactions[messageID]
	out := make([]*models.Reaction, 0, len(rows))
	for _, rec := range rows {
		cp := rec
		out = append(out, &cp)
	}
	return out, nil
}

type memPresence struct{ m *Memory }

func (r memPresence) Set(ctx context.Context, rec *models.PresenceRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.presence[rec.UserID] = *rec
	return nil
}

func (r memPresence) Get(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	rec, ok := r.m.presence[userID]
	if !ok {
		return nil, ErrNoDocument
	}
	cp := rec
	return &cp, nil
}

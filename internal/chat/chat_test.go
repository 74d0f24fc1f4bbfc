package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/events"
	"github.com/fathima-sithara/chat-core/internal/models"
	"github.com/fathima-sithara/chat-core/internal/repository"
)

type broadcastRecord struct {
	ConversationID string
	Event          string
	Payload        any
}

type captureBroadcaster struct {
	mu     sync.Mutex
	room   []broadcastRecord
	global []broadcastRecord
}

func (b *captureBroadcaster) BroadcastToConversation(conversationID, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.room = append(b.room, broadcastRecord{conversationID, event, payload})
}

func (b *captureBroadcaster) BroadcastGlobal(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, broadcastRecord{Event: event, Payload: payload})
}

func (b *captureBroadcaster) roomEvents(event string) []broadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastRecord
	for _, r := range b.room {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

func (b *captureBroadcaster) globalEvents(event string) []broadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastRecord
	for _, r := range b.global {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testEnv struct {
	store    repository.Store
	bcast    *captureBroadcaster
	clock    *fakeClock
	convs    *ConversationStore
	registry *ParticipantRegistry
	msgs     *MessageStore
	reacts   *ReactionIndex
	presence *PresenceTracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := repository.NewMemory()
	store := mem.Stores()
	bcast := &captureBroadcaster{}
	clock := newFakeClock()
	log := zap.NewNop().Sugar()

	env := &testEnv{
		store:    store,
		bcast:    bcast,
		clock:    clock,
		convs:    NewConversationStore(store, bcast, events.Nop{}, log),
		registry: NewParticipantRegistry(store, bcast, log),
		msgs:     NewMessageStore(store, bcast, events.Nop{}, nil, DefaultLimits(), log),
		reacts:   NewReactionIndex(store, bcast, events.Nop{}, DefaultLimits(), log),
		presence: NewPresenceTracker(store.Presence, bcast, log),
	}
	env.convs.now = clock.Now
	env.registry.now = clock.Now
	env.msgs.now = clock.Now
	env.reacts.now = clock.Now
	env.presence.now = clock.Now
	return env
}

func (e *testEnv) mustGroup(t *testing.T, creator, title string, members ...string) *models.Conversation {
	t.Helper()
	conv, err := e.convs.CreateGroup(context.Background(), creator, title, members)
	require.NoError(t, err)
	return conv
}

func (e *testEnv) mustSend(t *testing.T, conversationID, author, text string) *models.Message {
	t.Helper()
	msg, err := e.msgs.Send(context.Background(), conversationID, author, SendPayload{
		Type: models.MessageText,
		Text: text,
	})
	require.NoError(t, err)
	return msg
}

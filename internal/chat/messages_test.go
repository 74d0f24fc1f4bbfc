package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/events"
	"github.com/fathima-sithara/chat-core/internal/models"
	"github.com/fathima-sithara/chat-core/internal/repository"
)

func TestSendAndListNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	first := env.mustSend(t, conv.ID, "alice", "one")
	env.clock.Advance(time.Second)
	second := env.mustSend(t, conv.ID, "bob", "two")

	page, err := env.msgs.List(ctx, conv.ID, "carol", ListOptions{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, second.ID, page.Messages[0].ID)
	assert.Equal(t, first.ID, page.Messages[1].ID)

	asc, err := env.msgs.List(ctx, conv.ID, "carol", ListOptions{PageSize: 10, Ascending: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, asc.Messages[0].ID)

	got, err := env.store.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, second.CreatedAt, got.LastMessageAt)
	assert.Len(t, env.bcast.roomEvents(EventNewMessage), 2)
}

func TestSendGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	_, err := env.msgs.Send(ctx, "missing", "alice", SendPayload{Type: models.MessageText, Text: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.msgs.Send(ctx, conv.ID, "mallory", SendPayload{Type: models.MessageText, Text: "hi"})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = env.msgs.Send(ctx, conv.ID, "alice", SendPayload{Type: models.MessageText, Text: "   "})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = env.msgs.Send(ctx, conv.ID, "alice", SendPayload{Type: "video"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestSendMediaValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	_, err := env.msgs.Send(ctx, conv.ID, "alice", SendPayload{Type: models.MessageImage})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = env.msgs.Send(ctx, conv.ID, "alice", SendPayload{
		Type:  models.MessageImage,
		Media: &models.MediaDescriptor{URL: "https://cdn.example/x.png", Mime: "image/png", Size: 11 << 20},
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	// text alongside media breaks the union
	_, err = env.msgs.Send(ctx, conv.ID, "alice", SendPayload{
		Type:  models.MessageImage,
		Text:  "caption",
		Media: &models.MediaDescriptor{URL: "https://cdn.example/x.png", Mime: "image/png", Size: 1024},
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	msg, err := env.msgs.Send(ctx, conv.ID, "alice", SendPayload{
		Type:  models.MessageAudio,
		Media: &models.MediaDescriptor{URL: "https://cdn.example/v.ogg", Mime: "audio/ogg", Size: 2048},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageAudio, msg.Type)
	assert.Nil(t, msg.EditedAt)
}

func TestLockedConversationBlocksSendNotTyping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	msg := env.mustSend(t, conv.ID, "alice", "Hi")
	_, err := env.reacts.Add(ctx, msg.ID, "bob", "👍")
	require.NoError(t, err)

	require.NoError(t, env.convs.SetLock(ctx, conv.ID, true, "spam", "admin-1"))

	_, err = env.msgs.Send(ctx, conv.ID, "bob", SendPayload{Type: models.MessageText, Text: "still here?"})
	assert.ErrorIs(t, err, ErrConversationLocked)

	require.NoError(t, env.registry.SetTyping(ctx, conv.ID, "bob", true))
	assert.NotEmpty(t, env.bcast.roomEvents(EventUserTyping))
}

func TestEditWindowBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")
	window := DefaultLimits().EditWindow

	msg := env.mustSend(t, conv.ID, "alice", "typo")

	// strictly inside the window: allowed
	env.clock.Set(msg.CreatedAt.Add(window - time.Nanosecond))
	edited, err := env.msgs.Edit(ctx, msg.ID, "alice", "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Text)
	require.NotNil(t, edited.EditedAt)

	// at the boundary instant: expired, and edited_at does not reset the window
	env.clock.Set(msg.CreatedAt.Add(window))
	_, err = env.msgs.Edit(ctx, msg.ID, "alice", "again")
	assert.ErrorIs(t, err, ErrEditWindowExpired)
}

func TestEditRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")
	msg := env.mustSend(t, conv.ID, "alice", "hello")

	_, err := env.msgs.Edit(ctx, "missing", "alice", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.msgs.Edit(ctx, msg.ID, "bob", "x")
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, env.msgs.SoftDelete(ctx, msg.ID, "alice"))
	_, err = env.msgs.Edit(ctx, msg.ID, "alice", "x")
	assert.ErrorIs(t, err, ErrAlreadyDeleted)
}

func TestSoftDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")
	msg := env.mustSend(t, conv.ID, "alice", "hello")

	// a plain member cannot delete someone else's message
	assert.ErrorIs(t, env.msgs.SoftDelete(ctx, msg.ID, "bob"), ErrForbidden)

	// a moderator can
	require.NoError(t, env.store.Participants.SetRole(ctx, conv.ID, "bob", models.RoleModerator))
	require.NoError(t, env.msgs.SoftDelete(ctx, msg.ID, "bob"))

	assert.ErrorIs(t, env.msgs.SoftDelete(ctx, msg.ID, "alice"), ErrAlreadyDeleted)

	// the store keeps the row, flagged
	page, err := env.msgs.List(ctx, conv.ID, "carol", ListOptions{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].IsDeleted)
}

type failingParticipants struct {
	repository.Participants
	err error
}

func (f failingParticipants) Get(ctx context.Context, conversationID, userID string) (*models.Participant, error) {
	return nil, f.err
}

func TestSoftDeleteStoreFailurePropagates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")
	msg := env.mustSend(t, conv.ID, "alice", "hello")

	storeErr := errors.New("socket timeout")
	broken := env.store
	broken.Participants = failingParticipants{err: storeErr}
	msgs := NewMessageStore(broken, env.bcast, events.Nop{}, nil, DefaultLimits(), zap.NewNop().Sugar())

	// an I/O failure is not a permission verdict
	err := msgs.SoftDelete(ctx, msg.ID, "bob")
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestListPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	var ids []string
	for i := 0; i < 5; i++ {
		msg := env.mustSend(t, conv.ID, "alice", "m")
		ids = append(ids, msg.ID)
		env.clock.Advance(time.Second)
	}

	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := env.msgs.List(ctx, conv.ID, "bob", ListOptions{PageSize: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, m := range page.Messages {
			assert.False(t, seen[m.ID], "message repeated across pages")
			seen[m.ID] = true
		}
		if page.NextCursor == "" || len(page.Messages) == 0 {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, len(ids))
}

func TestListPageSizeBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	_, err := env.msgs.List(ctx, conv.ID, "alice", ListOptions{PageSize: 51})
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = env.msgs.List(ctx, conv.ID, "alice", ListOptions{PageSize: -1})
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = env.msgs.List(ctx, conv.ID, "mallory", ListOptions{PageSize: 10})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestConcurrentSendsNoLostUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")
	env.msgs.now = time.Now // real clock: distinct server-assigned timestamps

	var wg sync.WaitGroup
	results := make([]*models.Message, 2)
	for i, author := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, author string) {
			defer wg.Done()
			msg, err := env.msgs.Send(ctx, conv.ID, author, SendPayload{Type: models.MessageText, Text: "race"})
			require.NoError(t, err)
			results[i] = msg
		}(i, author)
	}
	wg.Wait()

	page, err := env.msgs.List(ctx, conv.ID, "carol", ListOptions{PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)

	latest := results[0].CreatedAt
	if results[1].CreatedAt.After(latest) {
		latest = results[1].CreatedAt
	}
	got, err := env.store.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, latest, got.LastMessageAt)
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	cur := encodeCursor(at, "msg-1")
	gotAt, gotID, err := decodeCursor(cur)
	require.NoError(t, err)
	assert.True(t, at.Equal(gotAt))
	assert.Equal(t, "msg-1", gotID)

	_, _, err = decodeCursor("not base64 at all!!")
	assert.Error(t, err)
}

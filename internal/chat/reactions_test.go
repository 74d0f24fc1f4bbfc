package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionReplaceNotStack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")
	msg := env.mustSend(t, conv.ID, "alice", "hello")

	_, err := env.reacts.Add(ctx, msg.ID, "bob", "👍")
	require.NoError(t, err)
	_, err = env.reacts.Add(ctx, msg.ID, "bob", "❤️")
	require.NoError(t, err)

	rows, err := env.reacts.ListFor(ctx, msg.ID, "alice")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "❤️", rows[0].Value)

	// a second user reacts independently
	_, err = env.reacts.Add(ctx, msg.ID, "carol", "👍")
	require.NoError(t, err)
	rows, err = env.reacts.ListFor(ctx, msg.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	assert.Len(t, env.bcast.roomEvents(EventMessageReaction), 3)
}

func TestReactionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")
	msg := env.mustSend(t, conv.ID, "alice", "hello")

	_, err := env.reacts.Add(ctx, msg.ID, "bob", "   ")
	assert.ErrorIs(t, err, ErrInvalidReaction)

	long := strings.Repeat("x", DefaultLimits().MaxReactionLength+1)
	_, err = env.reacts.Add(ctx, msg.ID, "bob", long)
	assert.ErrorIs(t, err, ErrInvalidReaction)

	_, err = env.reacts.Add(ctx, "missing", "bob", "👍")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.reacts.Add(ctx, msg.ID, "mallory", "👍")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestReactionOnDeletedMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")
	msg := env.mustSend(t, conv.ID, "alice", "hello")

	require.NoError(t, env.msgs.SoftDelete(ctx, msg.ID, "alice"))
	_, err := env.reacts.Add(ctx, msg.ID, "bob", "👍")
	assert.ErrorIs(t, err, ErrAlreadyDeleted)
}

func TestReactionRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")
	msg := env.mustSend(t, conv.ID, "alice", "hello")

	_, err := env.reacts.Add(ctx, msg.ID, "bob", "👍")
	require.NoError(t, err)

	// the stored value must match
	assert.ErrorIs(t, env.reacts.Remove(ctx, msg.ID, "bob", "❤️"), ErrNotFound)

	require.NoError(t, env.reacts.Remove(ctx, msg.ID, "bob", "👍"))
	rows, err := env.reacts.ListFor(ctx, msg.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, rows)

	// removing again is a miss
	assert.ErrorIs(t, env.reacts.Remove(ctx, msg.ID, "bob", "👍"), ErrNotFound)

	events := env.bcast.roomEvents(EventMessageReaction)
	require.Len(t, events, 2)
	removed := events[1].Payload.(map[string]any)["removed"].(bool)
	assert.True(t, removed)
}

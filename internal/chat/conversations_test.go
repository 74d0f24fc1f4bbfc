package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-core/internal/events"
	"github.com/fathima-sithara/chat-core/internal/models"
	"github.com/fathima-sithara/chat-core/internal/repository"
)

func TestCreateDirectIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationDirect, first.Type)
	assert.Equal(t, 2, first.MemberCount)
	assert.Empty(t, first.Title)

	// same pair, either order, resolves to the same conversation
	again, err := env.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	reversed, err := env.convs.CreateDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, reversed.ID)
}

// staleFindConversations simulates a creator whose existence check ran before
// another creator's insert became visible.
type staleFindConversations struct {
	repository.Conversations
	mu    sync.Mutex
	calls int
}

func (s *staleFindConversations) FindDirect(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	s.mu.Lock()
	first := s.calls == 0
	s.calls++
	s.mu.Unlock()
	if first {
		return nil, repository.ErrNoDocument
	}
	return s.Conversations.FindDirect(ctx, userA, userB)
}

func TestCreateDirectLostRaceCollapses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	existing, err := env.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	// the racer misses the existing row, inserts, and the unique pair key
	// turns its insert into a fetch of the winner's conversation
	stale := env.store
	stale.Conversations = &staleFindConversations{Conversations: env.store.Conversations}
	racer := NewConversationStore(stale, env.bcast, events.Nop{}, zap.NewNop().Sugar())

	got, err := racer.CreateDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
}

func TestCreateDirectConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := env.convs.CreateDirect(ctx, "alice", "bob")
			require.NoError(t, err)
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreateDirectSelf(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.convs.CreateDirect(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, ErrInvalidMembers)

	_, err = env.convs.CreateDirect(context.Background(), "alice", "")
	assert.ErrorIs(t, err, ErrInvalidMembers)
}

func TestCreateGroupValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.convs.CreateGroup(ctx, "alice", "  ", []string{"bob", "carol"})
	assert.ErrorIs(t, err, ErrInvalidTitle)

	_, err = env.convs.CreateGroup(ctx, "alice", "Trip Plan", []string{"bob"})
	assert.ErrorIs(t, err, ErrInsufficientMembers)

	// duplicates and the creator in the invite list don't count twice
	_, err = env.convs.CreateGroup(ctx, "alice", "Trip Plan", []string{"bob", "bob", "alice"})
	assert.ErrorIs(t, err, ErrInsufficientMembers)

	conv, err := env.convs.CreateGroup(ctx, "alice", "Trip Plan", []string{"bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, 3, conv.MemberCount)

	owner, err := env.store.Participants.Get(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, owner.Role)

	member, err := env.store.Participants.Get(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, member.Role)
}

func TestGetGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	_, err := env.convs.Get(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.convs.Get(ctx, conv.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotParticipant)

	got, err := env.convs.Get(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}

func TestUpdateMetadataPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	title := "New Title"
	err := env.convs.UpdateMetadata(ctx, conv.ID, "bob", MetadataUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrInsufficientPermissions)

	require.NoError(t, env.store.Participants.SetRole(ctx, conv.ID, "bob", models.RoleModerator))
	require.NoError(t, env.convs.UpdateMetadata(ctx, conv.ID, "bob", MetadataUpdate{Title: &title}))

	got, err := env.store.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Title", got.Title)

	empty := "   "
	err = env.convs.UpdateMetadata(ctx, conv.ID, "alice", MetadataUpdate{Title: &empty})
	assert.ErrorIs(t, err, ErrInvalidTitle)
}

func TestUpdateMetadataDirect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv, err := env.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	title := "nope"
	err = env.convs.UpdateMetadata(ctx, conv.ID, "alice", MetadataUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrUnsupportedForDirect)
}

func TestJoinLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	require.NoError(t, env.convs.Join(ctx, conv.ID, "dave"))
	got, err := env.store.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.MemberCount)

	// joining twice is a no-op
	require.NoError(t, env.convs.Join(ctx, conv.ID, "dave"))
	got, err = env.store.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.MemberCount)

	require.NoError(t, env.convs.Leave(ctx, conv.ID, "dave"))
	got, err = env.store.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MemberCount)
	assert.False(t, got.HasMember("dave"))

	err = env.convs.Leave(ctx, conv.ID, "dave")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestJoinLeaveDirectUnsupported(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv, err := env.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	assert.ErrorIs(t, env.convs.Join(ctx, conv.ID, "carol"), ErrUnsupportedForDirect)
	assert.ErrorIs(t, env.convs.Leave(ctx, conv.ID, "alice"), ErrUnsupportedForDirect)
}

func TestOwnerCannotLeaveUntilTransfer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	err := env.convs.Leave(ctx, conv.ID, "alice")
	assert.ErrorIs(t, err, ErrOwnerCannotLeave)

	require.NoError(t, env.registry.SetRole(ctx, conv.ID, "alice", "bob", models.RoleOwner))
	require.NoError(t, env.convs.Leave(ctx, conv.ID, "alice"))
}

func TestSetLockBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.mustGroup(t, "alice", "Trip Plan", "bob", "carol")

	require.NoError(t, env.convs.SetLock(ctx, conv.ID, true, "spam", "admin-1"))
	got, err := env.store.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLocked)
	assert.Equal(t, "spam", got.LockReason)
	assert.Len(t, env.bcast.roomEvents(EventConversationLocked), 1)

	require.NoError(t, env.convs.SetLock(ctx, conv.ID, false, "", "admin-1"))
	got, err = env.store.Conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, got.IsLocked)
	assert.Empty(t, got.LockReason)

	assert.ErrorIs(t, env.convs.SetLock(ctx, "missing", true, "spam", "admin-1"), ErrNotFound)
}

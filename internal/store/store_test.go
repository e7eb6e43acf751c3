package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/localchat/internal/model"
)

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "app.db")
	s, err := Open(path, WithClock(stepClock()))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store, username string) string {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username, "hash")
	require.NoError(t, err)
	return u.ID
}

func TestCreateUserFirstIsAdmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	assert.True(t, alice.IsAdmin)
	assert.True(t, alice.IsApproved)

	bob, err := s.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)
	assert.False(t, bob.IsAdmin)
	assert.False(t, bob.IsApproved)

	_, err = s.CreateUser(ctx, "alice", "other")
	assert.True(t, model.IsKind(err, model.KindConflict))

	// Usernames are case-sensitive.
	_, err = s.CreateUser(ctx, "Alice", "hash")
	assert.NoError(t, err)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)

	byID, err := s.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Equal(t, "hash", byID.PasswordHash)

	byName, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = s.GetUserByUsername(ctx, "ALICE")
	assert.True(t, model.IsKind(err, model.KindNotFound))

	_, err = s.GetUserByID(ctx, "missing")
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestApproveAndListUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "admin", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)

	approved, err := s.ApproveUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
	assert.True(t, users[1].IsApproved)

	_, err = s.ApproveUser(ctx, "missing")
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "admin", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)

	conv, err := s.CreateConversation(ctx, bob.ID, "chat")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, bob.ID, &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: "hi"}, ""))

	require.NoError(t, s.DeleteUser(ctx, bob.ID))

	_, err = s.GetUserByID(ctx, bob.ID)
	assert.True(t, model.IsKind(err, model.KindNotFound))

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	var remaining int64
	require.NoError(t, s.db.Model(&model.Conversation{}).Where("user_id = ?", bob.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	err = s.DeleteUser(ctx, bob.ID)
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestBootstrapAdmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, approved, err := s.BootstrapAdmin(ctx)
	require.NoError(t, err)
	assert.Nil(t, first)
	assert.Zero(t, approved)

	alice, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "bob", "hash")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "carol", "hash")
	require.NoError(t, err)

	// Simulate a database created before the approval workflow existed.
	require.NoError(t, s.db.Model(&model.User{}).Where("1 = 1").Updates(map[string]any{"is_admin": false, "is_approved": false}).Error)

	first, approved, err = s.BootstrapAdmin(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, alice.ID, first.ID)
	assert.True(t, first.IsAdmin)
	assert.EqualValues(t, 2, approved)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	for _, u := range users {
		assert.True(t, u.IsApproved, u.Username)
		assert.Equal(t, u.ID == alice.ID, u.IsAdmin, u.Username)
	}

	_, approved, err = s.BootstrapAdmin(ctx)
	require.NoError(t, err)
	assert.Zero(t, approved)
}

func TestConversationOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := mustUser(t, s, "owner")
	intruder := mustUser(t, s, "intruder")

	conv, err := s.CreateConversation(ctx, owner, "mine")
	require.NoError(t, err)

	_, err = s.GetConversation(ctx, intruder, conv.ID)
	assert.True(t, model.IsKind(err, model.KindNotFound))

	_, err = s.RenameConversation(ctx, intruder, conv.ID, "stolen")
	assert.True(t, model.IsKind(err, model.KindNotFound))

	err = s.SoftDeleteConversation(ctx, intruder, conv.ID)
	assert.True(t, model.IsKind(err, model.KindNotFound))

	err = s.AppendMessage(ctx, intruder, &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: "x"}, "")
	assert.True(t, model.IsKind(err, model.KindNotFound))

	got, err := s.GetConversation(ctx, owner, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title)
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u1 := mustUser(t, s, "u1")

	conv, err := s.CreateConversation(ctx, u1, "chat")
	require.NoError(t, err)

	require.NoError(t, s.SoftDeleteConversation(ctx, u1, conv.ID))
	require.NoError(t, s.SoftDeleteConversation(ctx, u1, conv.ID))

	_, err = s.GetConversation(ctx, u1, conv.ID)
	assert.True(t, model.IsKind(err, model.KindNotFound))

	list, err := s.ListConversations(ctx, u1)
	require.NoError(t, err)
	assert.Empty(t, list)

	var row model.Conversation
	require.NoError(t, s.db.First(&row, "id = ?", conv.ID).Error)
	assert.True(t, row.IsDeleted)

	assert.True(t, model.IsKind(s.SoftDeleteConversation(ctx, u1, "missing"), model.KindNotFound))
}

func TestListConversationsOrderedByUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u1 := mustUser(t, s, "u1")
	u2 := mustUser(t, s, "u2")

	older, err := s.CreateConversation(ctx, u1, "older")
	require.NoError(t, err)
	newer, err := s.CreateConversation(ctx, u1, "newer")
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, u2, "other user")
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, u1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	require.NoError(t, s.AppendMessage(ctx, u1, &model.Message{ConversationID: older.ID, Role: model.RoleUser, Content: "bump"}, ""))

	list, err = s.ListConversations(ctx, u1)
	require.NoError(t, err)
	assert.Equal(t, older.ID, list[0].ID)
}

func TestAppendMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u1 := mustUser(t, s, "u1")

	conv, err := s.CreateConversation(ctx, u1, "chat")
	require.NoError(t, err)

	image := "aGVsbG8="
	require.NoError(t, s.AppendMessage(ctx, u1, &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: "hi", Image: &image}, "llama3"))

	got, err := s.GetConversation(ctx, u1, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ModelUsed, "user messages do not record the model")
	assert.True(t, got.UpdatedAt.After(conv.UpdatedAt))

	tps := 12.5
	require.NoError(t, s.AppendMessage(ctx, u1, &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        "hello",
		Metrics:        &model.Metrics{TokensPerSecond: &tps},
	}, "llama3"))

	got, err = s.GetConversation(ctx, u1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "llama3", got.ModelUsed)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	require.NotNil(t, msgs[0].Image)
	assert.Equal(t, image, *msgs[0].Image)
	assert.Nil(t, msgs[0].Metrics)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.NotNil(t, msgs[1].Metrics)
	assert.Equal(t, 12.5, *msgs[1].Metrics.TokensPerSecond)

	err = s.AppendMessage(ctx, u1, &model.Message{ConversationID: conv.ID, Role: model.RoleSystem, Content: "x"}, "")
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestTouchConversationModel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u1 := mustUser(t, s, "u1")
	u2 := mustUser(t, s, "u2")

	conv, err := s.CreateConversation(ctx, u1, "chat")
	require.NoError(t, err)

	require.NoError(t, s.TouchConversationModel(ctx, u1, conv.ID, "qwen2"))

	got, err := s.GetConversation(ctx, u1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "qwen2", got.ModelUsed)
	assert.True(t, got.UpdatedAt.After(conv.UpdatedAt))

	assert.True(t, model.IsKind(s.TouchConversationModel(ctx, u2, conv.ID, "x"), model.KindNotFound))
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

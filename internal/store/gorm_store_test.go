package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkmln/parley/internal/domain"
)

func setupTestStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	s := NewGormStore(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return s
}

func seedUsers(t *testing.T, s *GormStore, names ...string) []domain.UserID {
	t.Helper()
	ctx := context.Background()
	ids := make([]domain.UserID, 0, len(names))
	for _, n := range names {
		u, err := domain.NewUser(n, "")
		require.NoError(t, err)
		require.NoError(t, s.EnsureUser(ctx, u))
		ids = append(ids, u.ID)
	}
	return ids
}

func TestGormStoreUserRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice")
	got, err := s.GetUser(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	// Ensure is an upsert.
	require.NoError(t, s.EnsureUser(ctx, &domain.User{ID: ids[0], Username: "alice2"}))
	got, err = s.GetUser(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "alice2", got.Username)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreDirectRoomPairInvariant(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, s, "alice", "bob")

	r1, err := s.GetOrCreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)
	require.Len(t, r1.Members, 2)
	assert.False(t, r1.IsGroup)

	// Reversed order must land in the same room.
	r2, err := s.GetOrCreateDirect(ctx, ids[1], ids[0])
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)

	rooms, err := s.RoomsOf(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestGormStoreMessageLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, s, "alice", "bob")

	room, err := s.GetOrCreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	msg := domain.NewMessage(room.ID, ids[0], "hello", []domain.Attachment{
		{URL: "/a", Filename: "a.png", MimeCategory: "image", StorageID: "b1"},
		{URL: "/b", Filename: "b.pdf", MimeCategory: "document", StorageID: "b2"},
	}, nil, false)
	require.NoError(t, s.CreateMessage(ctx, msg))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "a.png", got.Attachments[0].Filename, "attachment order is preserved")
	assert.Equal(t, []domain.UserID{ids[0]}, got.ReadBy, "creation receipt for the sender is persisted")

	// Edit.
	now := msg.CreatedAt.Add(time.Second)
	require.NoError(t, s.UpdateContent(ctx, msg.ID, "hello v2", now))
	got, err = s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello v2", got.Content)
	require.NotNil(t, got.EditedAt)

	// Delete hides the message from every reader.
	require.NoError(t, s.DeleteMessage(ctx, msg.ID))
	_, err = s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteMessage(ctx, msg.ID), ErrNotFound)
	assert.ErrorIs(t, s.UpdateContent(ctx, msg.ID, "zombie", now), ErrNotFound)
}

func TestGormStoreReceiptsAndUnread(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, s, "alice", "bob")
	alice, bob := ids[0], ids[1]

	room, err := s.GetOrCreateDirect(ctx, alice, bob)
	require.NoError(t, err)

	n, err := s.CountUnread(ctx, room.ID, bob)
	require.NoError(t, err)
	assert.Zero(t, n, "empty room counts zero, not an error")

	m1 := domain.NewMessage(room.ID, alice, "1", nil, nil, false)
	m2 := domain.NewMessage(room.ID, alice, "2", nil, nil, false)
	require.NoError(t, s.CreateMessage(ctx, m1))
	require.NoError(t, s.CreateMessage(ctx, m2))

	n, _ = s.CountUnread(ctx, room.ID, bob)
	assert.Equal(t, 2, n)
	n, _ = s.CountUnread(ctx, room.ID, alice)
	assert.Zero(t, n, "own messages are never unread")

	require.NoError(t, s.AddReceipt(ctx, m1.ID, bob))
	require.NoError(t, s.AddReceipt(ctx, m1.ID, bob), "duplicate receipt is a no-op")

	n, _ = s.CountUnread(ctx, room.ID, bob)
	assert.Equal(t, 1, n)

	got, err := s.GetMessage(ctx, m1.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.UserID{alice, bob}, got.ReadBy)

	// Deleted messages drop out of the unread count.
	require.NoError(t, s.DeleteMessage(ctx, m2.ID))
	n, _ = s.CountUnread(ctx, room.ID, bob)
	assert.Zero(t, n)
}

func TestGormStoreFavoriteToggle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, s, "alice", "bob")

	room, err := s.GetOrCreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)
	msg := domain.NewMessage(room.ID, ids[0], "star", nil, nil, false)
	require.NoError(t, s.CreateMessage(ctx, msg))

	require.NoError(t, s.SetFavorite(ctx, msg.ID, ids[1], true))
	require.NoError(t, s.SetFavorite(ctx, msg.ID, ids[1], true))
	got, _ := s.GetMessage(ctx, msg.ID)
	assert.Equal(t, []domain.UserID{ids[1]}, got.FavoritedBy)

	require.NoError(t, s.SetFavorite(ctx, msg.ID, ids[1], false))
	require.NoError(t, s.SetFavorite(ctx, msg.ID, ids[1], false))
	got, _ = s.GetMessage(ctx, msg.ID)
	assert.Empty(t, got.FavoritedBy)
}

func TestGormStoreListRoomOrdersByCreation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, s, "alice", "bob")

	room, err := s.GetOrCreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	m1 := domain.NewMessage(room.ID, ids[0], "first", nil, nil, false)
	m2 := domain.NewMessage(room.ID, ids[1], "second", nil, nil, false)
	m2.CreatedAt = m1.CreatedAt.Add(time.Second)
	require.NoError(t, s.CreateMessage(ctx, m1))
	require.NoError(t, s.CreateMessage(ctx, m2))

	msgs, err := s.ListRoom(ctx, room.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestGormStoreReplyReferencePersisted(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ids := seedUsers(t, s, "alice", "bob")

	room, err := s.GetOrCreateDirect(ctx, ids[0], ids[1])
	require.NoError(t, err)

	orig := domain.NewMessage(room.ID, ids[0], "original", nil, nil, false)
	require.NoError(t, s.CreateMessage(ctx, orig))
	reply := domain.NewMessage(room.ID, ids[1], "answer", nil, &orig.ID, false)
	require.NoError(t, s.CreateMessage(ctx, reply))

	got, err := s.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReplyToID)
	assert.Equal(t, orig.ID, *got.ReplyToID)
}

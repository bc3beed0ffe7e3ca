// Package store is the persistence boundary of the coordinator. The
// interfaces promise atomic single-document writes and strongly
// consistent reads after writes within one logical operation; no
// multi-message transactions are required above this line.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkmln/parley/internal/domain"
)

// ErrNotFound is returned for a missing or deleted target. Callers must
// be able to distinguish it from an idempotent no-op.
var ErrNotFound = errors.New("store: not found")

type MessageStore interface {
	CreateMessage(ctx context.Context, m *domain.Message) error
	// GetMessage excludes deleted messages: a soft-deleted message is
	// ErrNotFound to every reader.
	GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	UpdateContent(ctx context.Context, id domain.MessageID, content string, editedAt time.Time) error
	DeleteMessage(ctx context.Context, id domain.MessageID) error
	// AddReceipt is idempotent: a duplicate receipt is a successful no-op.
	AddReceipt(ctx context.Context, id domain.MessageID, uid domain.UserID) error
	// SetFavorite is idempotent in both directions.
	SetFavorite(ctx context.Context, id domain.MessageID, uid domain.UserID, want bool) error
	ListRoom(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error)
	// CountUnread counts messages in roomID not sent by uid and lacking
	// uid's receipt. A room with zero messages yields 0.
	CountUnread(ctx context.Context, roomID domain.RoomID, uid domain.UserID) (int, error)
}

type RoomStore interface {
	CreateRoom(ctx context.Context, r *domain.Room) error
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	// GetOrCreateDirect returns the single 1:1 room for the unordered
	// pair {a, b}, creating it on first use.
	GetOrCreateDirect(ctx context.Context, a, b domain.UserID) (*domain.Room, error)
	RoomsOf(ctx context.Context, uid domain.UserID) ([]domain.Room, error)
	IsMember(ctx context.Context, roomID domain.RoomID, uid domain.UserID) (bool, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	// EnsureUser upserts the user record on handshake.
	EnsureUser(ctx context.Context, u *domain.User) error
}

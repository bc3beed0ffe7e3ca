package app

import (
	"context"

	"github.com/dkmln/parley/internal/domain"
	"github.com/dkmln/parley/internal/store"
)

// Unread derives per-user unread counts from persisted read-receipt
// state. Counts are recomputed from the store on every call, never
// cached incrementally, so the reported number always matches the true
// unread message count.
type Unread struct {
	messages store.MessageStore
	rooms    store.RoomStore
}

func NewUnread(messages store.MessageStore, rooms store.RoomStore) *Unread {
	return &Unread{messages: messages, rooms: rooms}
}

// ForRoom computes the unread count one user has in one room. A room
// with zero messages yields 0.
func (u *Unread) ForRoom(ctx context.Context, roomID domain.RoomID, uid domain.UserID) (int, error) {
	n, err := u.messages.CountUnread(ctx, roomID, uid)
	if err != nil {
		return 0, Wrap(KindPersistence, "unread.room", err)
	}
	return n, nil
}

// ForUser computes the user's unread counts across all their rooms,
// keyed by peer user id for 1:1 rooms and by room id for group rooms.
func (u *Unread) ForUser(ctx context.Context, uid domain.UserID) (map[string]int, error) {
	rooms, err := u.rooms.RoomsOf(ctx, uid)
	if err != nil {
		return nil, Wrap(KindPersistence, "unread.user", err)
	}
	out := make(map[string]int, len(rooms))
	for _, room := range rooms {
		n, err := u.messages.CountUnread(ctx, room.ID, uid)
		if err != nil {
			return nil, Wrap(KindPersistence, "unread.user", err)
		}
		key := string(room.ID)
		if peer, ok := room.Peer(uid); ok {
			key = string(peer)
		}
		out[key] = n
	}
	return out, nil
}

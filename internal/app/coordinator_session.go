package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
	"github.com/dkmln/parley/internal/store"
)

// Connect registers an authenticated connection, binds it to every room
// the user belongs to, and returns the personalized user list plus a
// global presence event when this is the user's first connection.
func (c *Coordinator) Connect(ctx context.Context, uid domain.UserID, connID core.ConnID, conn core.EventConn) ([]Notification, error) {
	const op = "coordinator.connect"

	first := c.Registry.Register(uid, connID, conn)
	log.Info().Str("module", "app.coordinator").Str("user", string(uid)).Str("conn", string(connID)).Bool("first", first).Msg("connection established")

	rooms, err := c.Rooms.RoomsOf(ctx, uid)
	if err != nil {
		return nil, Wrap(KindPersistence, op, err)
	}
	for _, room := range rooms {
		c.Fanout.Join(connID, conn, room.ID)
	}

	listEvent, err := c.buildUserList(ctx, uid, rooms)
	if err != nil {
		return nil, err
	}

	notifications := []Notification{NotifyConn(connID, listEvent)}
	if first {
		notifications = append(notifications, NotifyGlobal(core.Presence(uid, true)))
	}
	return notifications, nil
}

// Disconnect is best-effort cleanup: clear any typing indicator, drop
// the connection from all room channels, unregister, and announce the
// offline transition when this was the user's last connection. It never
// fails back to the transport.
func (c *Coordinator) Disconnect(uid domain.UserID, connID core.ConnID) []Notification {
	var notifications []Notification

	// Clear a stuck typing indicator before the connection vanishes.
	c.Typing.Stop(connID)
	c.Fanout.DropAll(connID)

	if offline := c.Registry.Unregister(uid, connID); offline {
		notifications = append(notifications, NotifyGlobal(core.Presence(uid, false)))
	}
	log.Info().Str("module", "app.coordinator").Str("user", string(uid)).Str("conn", string(connID)).Msg("connection closed")
	return notifications
}

// JoinRoom binds the connection to a room channel. Idempotent; only
// members may join.
func (c *Coordinator) JoinRoom(ctx context.Context, connID core.ConnID, uid domain.UserID, roomID domain.RoomID) error {
	const op = "coordinator.join"

	room, err := c.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return E(KindNotFound, op, "room not found")
		}
		return Wrap(KindPersistence, op, err)
	}
	if !room.HasMember(uid) {
		return E(KindAuthorization, op, "user is not a room member")
	}
	ref, ok := c.Registry.Lookup(connID)
	if !ok {
		return E(KindNotFound, op, "connection gone")
	}
	c.Fanout.Join(connID, ref.Conn, roomID)
	return nil
}

// LeaveRoom unbinds the connection from a room channel. Idempotent.
func (c *Coordinator) LeaveRoom(connID core.ConnID, roomID domain.RoomID) {
	c.Fanout.Leave(connID, roomID)
}

// OpenDirect looks up or creates the single 1:1 room for the pair and
// binds both members' live connections to it so messages flow without a
// reconnect.
func (c *Coordinator) OpenDirect(ctx context.Context, uid, peer domain.UserID) (*domain.Room, error) {
	const op = "coordinator.direct"

	if uid == peer {
		return nil, E(KindValidation, op, "cannot open a direct room with yourself")
	}
	if _, err := c.Users.GetUser(ctx, peer); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(KindNotFound, op, "peer not found")
		}
		return nil, Wrap(KindPersistence, op, err)
	}
	room, err := c.Rooms.GetOrCreateDirect(ctx, uid, peer)
	if err != nil {
		return nil, Wrap(KindPersistence, op, err)
	}
	c.bindMembers(room)
	return room, nil
}

// CreateGroupRoom creates a group room containing the creator and binds
// all members' live connections to it.
func (c *Coordinator) CreateGroupRoom(ctx context.Context, creator domain.UserID, name string, members []domain.UserID) (*domain.Room, error) {
	const op = "coordinator.createroom"

	if name == "" || len(name) > domain.MaxRoomNameLen {
		return nil, E(KindValidation, op, "invalid room name")
	}
	all := []domain.UserID{creator}
	for _, m := range members {
		if m != creator {
			all = append(all, m)
		}
	}
	for _, m := range all {
		if _, err := c.Users.GetUser(ctx, m); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, E(KindValidation, op, "unknown member "+string(m))
			}
			return nil, Wrap(KindPersistence, op, err)
		}
	}
	room := domain.NewGroupRoom(name, all)
	if err := c.Rooms.CreateRoom(ctx, room); err != nil {
		return nil, Wrap(KindPersistence, op, err)
	}
	c.bindMembers(room)
	log.Info().Str("module", "app.coordinator").Str("room", string(room.ID)).Int("members", len(all)).Msg("group room created")
	return room, nil
}

func (c *Coordinator) bindMembers(room *domain.Room) {
	for _, member := range room.Members {
		for _, ref := range c.Registry.ConnectionsOf(member) {
			c.Fanout.Join(ref.ID, ref.Conn, room.ID)
		}
	}
}

// buildUserList assembles the personalized directory sent once on
// connect: every other user with online flag and per-peer unread, plus
// the viewer's group rooms with their unread counts.
func (c *Coordinator) buildUserList(ctx context.Context, uid domain.UserID, rooms []domain.Room) (core.UserListEvent, error) {
	const op = "coordinator.userlist"

	users, err := c.Users.ListUsers(ctx)
	if err != nil {
		return core.UserListEvent{}, Wrap(KindPersistence, op, err)
	}
	unread, err := c.Unread.ForUser(ctx, uid)
	if err != nil {
		return core.UserListEvent{}, err
	}
	online := c.Registry.OnlineUsers()

	directRooms := make(map[domain.UserID]domain.RoomID)
	var groupEntries []core.RoomListEntry
	for _, room := range rooms {
		if peer, ok := room.Peer(uid); ok {
			directRooms[peer] = room.ID
			continue
		}
		groupEntries = append(groupEntries, core.RoomListEntry{Room: room, Unread: unread[string(room.ID)]})
	}

	userEntries := make([]core.UserListEntry, 0, len(users))
	for _, u := range users {
		if u.ID == uid {
			continue
		}
		entry := core.UserListEntry{
			User:   userDTO(&u),
			Online: online[u.ID],
		}
		if roomID, ok := directRooms[u.ID]; ok {
			entry.RoomID = roomID
			entry.Unread = unread[string(u.ID)]
		}
		userEntries = append(userEntries, entry)
	}
	return core.UserList(userEntries, groupEntries), nil
}

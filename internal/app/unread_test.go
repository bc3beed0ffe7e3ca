package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkmln/parley/internal/domain"
)

func TestUnreadForUserKeying(t *testing.T) {
	st := newMemStore()
	st.addUser("alice", "Alice")
	st.addUser("bob", "Bob")
	st.addUser("carol", "Carol")

	direct := domain.NewDirectRoom("alice", "bob")
	st.addRoom(direct)
	group := domain.NewGroupRoom("general", []domain.UserID{"alice", "bob", "carol"})
	st.addRoom(group)

	ctx := context.Background()
	require.NoError(t, st.CreateMessage(ctx, domain.NewMessage(direct.ID, "alice", "dm", nil, nil, false)))
	require.NoError(t, st.CreateMessage(ctx, domain.NewMessage(group.ID, "carol", "g1", nil, nil, false)))
	require.NoError(t, st.CreateMessage(ctx, domain.NewMessage(group.ID, "carol", "g2", nil, nil, false)))

	u := NewUnread(st, st)
	counts, err := u.ForUser(ctx, "bob")
	require.NoError(t, err)

	assert.Equal(t, 1, counts["alice"], "1:1 unread is keyed by peer user id")
	assert.Equal(t, 2, counts[string(group.ID)], "group unread is keyed by room id")
}

func TestUnreadEmptyRoomIsZero(t *testing.T) {
	st := newMemStore()
	st.addUser("alice", "Alice")
	room := domain.NewGroupRoom("quiet", []domain.UserID{"alice"})
	st.addRoom(room)

	u := NewUnread(st, st)
	n, err := u.ForRoom(context.Background(), room.ID, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcherClosesDroppedConnections(t *testing.T) {
	reg := NewRegistry()
	fanout := NewFanout(reg)
	d := NewDispatcher(fanout, reg)

	slow := &fakeConn{full: true}
	reg.Register("alice", "ca", slow)
	fanout.Join("ca", slow, "room1")

	d.Apply([]Notification{NotifyRoom("room1", map[string]string{"type": "x"})})
	assert.True(t, slow.closed, "a connection whose buffer is full gets closed so its pumps exit")
}

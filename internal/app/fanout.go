package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
)

// Fanout is a pure pub/sub relay: room-keyed delivery plus user and
// global targeting resolved through the registry. It persists nothing.
// Delivery uses TrySend, so a slow or dead connection is dropped from
// the result and never blocks the others.
type Fanout struct {
	reg *Registry

	mu     sync.RWMutex
	rooms  map[domain.RoomID]map[core.ConnID]core.EventConn
	joined map[core.ConnID]map[domain.RoomID]struct{}
}

func NewFanout(reg *Registry) *Fanout {
	return &Fanout{
		reg:    reg,
		rooms:  make(map[domain.RoomID]map[core.ConnID]core.EventConn),
		joined: make(map[core.ConnID]map[domain.RoomID]struct{}),
	}
}

// Join binds a connection to a room channel. Idempotent.
func (f *Fanout) Join(id core.ConnID, conn core.EventConn, roomID domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		room = make(map[core.ConnID]core.EventConn)
		f.rooms[roomID] = room
	}
	if _, ok := room[id]; ok {
		return
	}
	room[id] = conn
	rooms, ok := f.joined[id]
	if !ok {
		rooms = make(map[domain.RoomID]struct{})
		f.joined[id] = rooms
	}
	rooms[roomID] = struct{}{}
	log.Debug().Str("module", "app.fanout").Str("conn", string(id)).Str("room", string(roomID)).Msg("joined room channel")
}

func (f *Fanout) Leave(id core.ConnID, roomID domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveLocked(id, roomID)
}

func (f *Fanout) leaveLocked(id core.ConnID, roomID domain.RoomID) {
	if room, ok := f.rooms[roomID]; ok {
		delete(room, id)
		if len(room) == 0 {
			delete(f.rooms, roomID)
		}
	}
	if rooms, ok := f.joined[id]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(f.joined, id)
		}
	}
}

// DropAll removes a connection from every room channel. Part of
// disconnect cleanup; best-effort by construction.
func (f *Fanout) DropAll(id core.ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for roomID := range f.joined[id] {
		f.leaveLocked(id, roomID)
	}
}

// Rooms snapshots the rooms a connection is bound to.
func (f *Fanout) Rooms(id core.ConnID) []domain.RoomID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(f.joined[id]))
	for roomID := range f.joined[id] {
		out = append(out, roomID)
	}
	return out
}

// Broadcast delivers a frame to every connection in the room. Events
// enqueued here from one source connection keep their submission order
// per room; no ordering holds across rooms or sources.
func (f *Fanout) Broadcast(roomID domain.RoomID, frame core.Frame) core.DeliveryResult {
	f.mu.RLock()
	room := f.rooms[roomID]
	targets := make([]core.ConnRef, 0, len(room))
	for id, c := range room {
		targets = append(targets, core.ConnRef{ID: id, Conn: c})
	}
	f.mu.RUnlock()
	return deliver(targets, frame, "room", string(roomID))
}

// BroadcastToUser targets all of a user's connections regardless of
// room membership. Used for personal projections like unread counts.
func (f *Fanout) BroadcastToUser(uid domain.UserID, frame core.Frame) core.DeliveryResult {
	return deliver(f.reg.ConnectionsOf(uid), frame, "user", string(uid))
}

// BroadcastGlobal targets every live connection (presence, directory
// refresh).
func (f *Fanout) BroadcastGlobal(frame core.Frame) core.DeliveryResult {
	return deliver(f.reg.All(), frame, "global", "")
}

// SendTo targets one connection (acks, personalized user list).
func (f *Fanout) SendTo(id core.ConnID, frame core.Frame) error {
	ref, ok := f.reg.Lookup(id)
	if !ok {
		return E(KindNotFound, "fanout.send", "connection gone")
	}
	return ref.Conn.TrySend(frame)
}

func deliver(targets []core.ConnRef, frame core.Frame, scope, key string) core.DeliveryResult {
	res := core.DeliveryResult{}
	for _, t := range targets {
		if err := t.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, t.ID)
			continue
		}
		res.Sent++
	}
	if len(res.Dropped) > 0 {
		log.Warn().Str("module", "app.fanout").Str("scope", scope).Str("key", key).Int("sent", res.Sent).Int("dropped", len(res.Dropped)).Msg("broadcast dropped slow connections")
	}
	return res
}

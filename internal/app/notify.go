package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
)

// NotifyScope selects the fan-out target of one notification.
type NotifyScope int

const (
	// ToRoom delivers to every connection bound to the room channel.
	ToRoom NotifyScope = iota
	// ToUser delivers to all of one user's connections.
	ToUser
	// ToConn delivers to a single connection.
	ToConn
	// Global delivers to every live connection.
	Global
)

// Notification is an intended event emission. Coordinator operations
// return these instead of broadcasting as a side effect, so the core
// logic is testable without a live transport; the Dispatcher applies
// them afterwards, always after persistence has succeeded.
type Notification struct {
	Scope  NotifyScope
	RoomID domain.RoomID
	UserID domain.UserID
	ConnID core.ConnID
	Event  any
}

func NotifyRoom(roomID domain.RoomID, event any) Notification {
	return Notification{Scope: ToRoom, RoomID: roomID, Event: event}
}

func NotifyUser(uid domain.UserID, event any) Notification {
	return Notification{Scope: ToUser, UserID: uid, Event: event}
}

func NotifyConn(id core.ConnID, event any) Notification {
	return Notification{Scope: ToConn, ConnID: id, Event: event}
}

func NotifyGlobal(event any) Notification {
	return Notification{Scope: Global, Event: event}
}

// Dispatcher routes notifications through the fanout. Connections the
// fanout reports as dropped (send buffer full or closed) are closed so
// their pumps exit and disconnect cleanup reclaims them.
type Dispatcher struct {
	fanout *Fanout
	reg    *Registry
}

func NewDispatcher(fanout *Fanout, reg *Registry) *Dispatcher {
	return &Dispatcher{fanout: fanout, reg: reg}
}

func (d *Dispatcher) Apply(notifications []Notification) {
	for _, n := range notifications {
		frame, err := core.Marshal(n.Event)
		if err != nil {
			log.Error().Err(err).Str("module", "app.dispatch").Msg("marshal event")
			continue
		}
		var res core.DeliveryResult
		switch n.Scope {
		case ToRoom:
			res = d.fanout.Broadcast(n.RoomID, frame)
		case ToUser:
			res = d.fanout.BroadcastToUser(n.UserID, frame)
		case ToConn:
			if err := d.fanout.SendTo(n.ConnID, frame); err != nil {
				res.Dropped = append(res.Dropped, n.ConnID)
			}
		case Global:
			res = d.fanout.BroadcastGlobal(frame)
		}
		d.kickDropped(res.Dropped)
	}
}

func (d *Dispatcher) kickDropped(dropped []core.ConnID) {
	for _, id := range dropped {
		if ref, ok := d.reg.Lookup(id); ok {
			log.Warn().Str("module", "app.dispatch").Str("conn", string(id)).Msg("closing slow connection")
			ref.Conn.Close()
		}
	}
}

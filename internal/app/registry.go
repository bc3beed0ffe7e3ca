package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
)

// userEntry groups all connections of one user. Its own mutex
// serializes register/unregister per user, so the online/offline
// transition for a user is computed exactly once even when several of
// that user's connections race; unrelated users never contend.
type userEntry struct {
	mu    sync.Mutex
	conns map[core.ConnID]core.EventConn
}

// Registry tracks live connections per user identity. Presence is a
// pure function of it: online(u) == len(conns(u)) > 0. There is no
// timeout reaping; transitions are driven only by explicit
// register/unregister from the transport.
type Registry struct {
	mu    sync.RWMutex
	users map[domain.UserID]*userEntry
	byID  map[core.ConnID]core.ConnRef
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[domain.UserID]*userEntry),
		byID:  make(map[core.ConnID]core.ConnRef),
	}
}

// entry returns the per-user entry, creating it on first use. Entries
// for users whose connection set has drained are kept around: they are
// bounded by the user population and keeping them avoids a
// delete/recreate race on the outer map.
func (r *Registry) entry(uid domain.UserID) *userEntry {
	r.mu.RLock()
	e, ok := r.users[uid]
	r.mu.RUnlock()
	if ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.users[uid]; ok {
		return e
	}
	e = &userEntry{conns: make(map[core.ConnID]core.EventConn)}
	r.users[uid] = e
	return e
}

// Register adds a connection and reports whether the user just came
// online (first connection). A second device never re-emits the online
// transition.
func (r *Registry) Register(uid domain.UserID, id core.ConnID, conn core.EventConn) (online bool) {
	e := r.entry(uid)
	e.mu.Lock()
	wasEmpty := len(e.conns) == 0
	e.conns[id] = conn
	e.mu.Unlock()

	r.mu.Lock()
	r.byID[id] = core.ConnRef{ID: id, UserID: uid, Conn: conn}
	r.mu.Unlock()

	log.Debug().Str("module", "app.registry").Str("user", string(uid)).Str("conn", string(id)).Bool("online_transition", wasEmpty).Msg("registered connection")
	return wasEmpty
}

// Unregister removes a connection and reports whether the user just
// went offline (connection set drained). Unregistering an unknown
// connection is a no-op. Two connections of the same user disconnecting
// simultaneously yield exactly one offline transition.
func (r *Registry) Unregister(uid domain.UserID, id core.ConnID) (offline bool) {
	r.mu.Lock()
	delete(r.byID, id)
	e := r.users[uid]
	r.mu.Unlock()
	if e == nil {
		return false
	}

	e.mu.Lock()
	if _, ok := e.conns[id]; !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.conns, id)
	drained := len(e.conns) == 0
	e.mu.Unlock()

	log.Debug().Str("module", "app.registry").Str("user", string(uid)).Str("conn", string(id)).Bool("offline_transition", drained).Msg("unregistered connection")
	return drained
}

func (r *Registry) IsOnline(uid domain.UserID) bool {
	r.mu.RLock()
	e := r.users[uid]
	r.mu.RUnlock()
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns) > 0
}

// ConnectionsOf snapshots all live connections of a user.
func (r *Registry) ConnectionsOf(uid domain.UserID) []core.ConnRef {
	r.mu.RLock()
	e := r.users[uid]
	r.mu.RUnlock()
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.ConnRef, 0, len(e.conns))
	for id, c := range e.conns {
		out = append(out, core.ConnRef{ID: id, UserID: uid, Conn: c})
	}
	return out
}

// Lookup resolves a connection id to its ref.
func (r *Registry) Lookup(id core.ConnID) (core.ConnRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.byID[id]
	return ref, ok
}

// All snapshots every live connection (global broadcast targeting).
func (r *Registry) All() []core.ConnRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ConnRef, 0, len(r.byID))
	for _, ref := range r.byID {
		out = append(out, ref)
	}
	return out
}

// OnlineUsers snapshots the ids of all currently online users.
func (r *Registry) OnlineUsers() map[domain.UserID]bool {
	r.mu.RLock()
	entries := make(map[domain.UserID]*userEntry, len(r.users))
	for uid, e := range r.users {
		entries[uid] = e
	}
	r.mu.RUnlock()

	out := make(map[domain.UserID]bool)
	for uid, e := range entries {
		e.mu.Lock()
		if len(e.conns) > 0 {
			out[uid] = true
		}
		e.mu.Unlock()
	}
	return out
}

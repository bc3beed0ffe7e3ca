package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
)

// TypingStopFunc is called whenever a typing indicator should clear,
// either by explicit stop or by the debounce window expiring.
type TypingStopFunc func(roomID domain.RoomID, uid domain.UserID)

// typingTimer is one outstanding auto-clear timer. gen guards against a
// fired timer clearing a newer re-arm.
type typingTimer struct {
	mu     sync.Mutex
	roomID domain.RoomID
	uid    domain.UserID
	timer  *time.Timer
	gen    uint64
}

// Typing debounces typing signals per connection: starting typing
// (re)arms a single timer, an explicit stop cancels it immediately, and
// a quiet window synthesizes the stop so indicators never stick after a
// client crash or a dropped stop signal.
type Typing struct {
	window time.Duration
	onStop TypingStopFunc

	mu     sync.RWMutex
	timers map[core.ConnID]*typingTimer
}

func NewTyping(window time.Duration, onStop TypingStopFunc) *Typing {
	return &Typing{
		window: window,
		onStop: onStop,
		timers: make(map[core.ConnID]*typingTimer),
	}
}

func (t *Typing) entry(id core.ConnID) *typingTimer {
	t.mu.RLock()
	e, ok := t.timers[id]
	t.mu.RUnlock()
	if ok {
		return e
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.timers[id]; ok {
		return e
	}
	e = &typingTimer{}
	t.timers[id] = e
	return e
}

// Start arms (or re-arms) the connection's timer for the given room.
// At most one timer is outstanding per connection; re-arming replaces
// rather than stacks. If the connection was typing in a different room,
// that room gets its stop first.
func (t *Typing) Start(id core.ConnID, uid domain.UserID, roomID domain.RoomID) {
	e := t.entry(id)

	var stopOld *struct {
		roomID domain.RoomID
		uid    domain.UserID
	}

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		if e.roomID != roomID {
			stopOld = &struct {
				roomID domain.RoomID
				uid    domain.UserID
			}{e.roomID, e.uid}
		}
	}
	e.roomID = roomID
	e.uid = uid
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(t.window, func() { t.expire(id, gen) })
	e.mu.Unlock()

	if stopOld != nil {
		t.onStop(stopOld.roomID, stopOld.uid)
	}
}

// Stop cancels the outstanding timer and emits the stop immediately.
// No-op when nothing is armed.
func (t *Typing) Stop(id core.ConnID) {
	t.mu.RLock()
	e := t.timers[id]
	t.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.timer == nil {
		e.mu.Unlock()
		return
	}
	e.timer.Stop()
	e.timer = nil
	e.gen++
	roomID, uid := e.roomID, e.uid
	e.mu.Unlock()

	t.onStop(roomID, uid)
}

// Cancel drops the timer without emitting; used when the stop is being
// emitted through another path.
func (t *Typing) Cancel(id core.ConnID) {
	t.mu.RLock()
	e := t.timers[id]
	t.mu.RUnlock()
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
		e.gen++
	}
	e.mu.Unlock()
}

func (t *Typing) expire(id core.ConnID, gen uint64) {
	t.mu.RLock()
	e := t.timers[id]
	t.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.gen != gen || e.timer == nil {
		// Re-armed or stopped after this timer fired.
		e.mu.Unlock()
		return
	}
	e.timer = nil
	roomID, uid := e.roomID, e.uid
	e.mu.Unlock()

	log.Debug().Str("module", "app.typing").Str("conn", string(id)).Str("room", string(roomID)).Msg("typing window expired")
	t.onStop(roomID, uid)
}

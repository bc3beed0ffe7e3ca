package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkmln/parley/internal/domain"
)

type stopRecorder struct {
	mu    sync.Mutex
	stops []domain.RoomID
}

func (r *stopRecorder) record(roomID domain.RoomID, uid domain.UserID) {
	r.mu.Lock()
	r.stops = append(r.stops, roomID)
	r.mu.Unlock()
}

func (r *stopRecorder) snapshot() []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RoomID(nil), r.stops...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTypingAutoExpiry(t *testing.T) {
	rec := &stopRecorder{}
	ty := NewTyping(30*time.Millisecond, rec.record)

	ty.Start("c1", "alice", "room1")
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	assert.Equal(t, domain.RoomID("room1"), rec.snapshot()[0], "quiet window must synthesize the stop")

	// Expired timer is gone; a later stop is a no-op.
	ty.Stop("c1")
	assert.Len(t, rec.snapshot(), 1)
}

func TestTypingRearmReplacesTimer(t *testing.T) {
	rec := &stopRecorder{}
	ty := NewTyping(50*time.Millisecond, rec.record)

	ty.Start("c1", "alice", "room1")
	time.Sleep(30 * time.Millisecond)
	ty.Start("c1", "alice", "room1")
	time.Sleep(30 * time.Millisecond)
	// 60ms elapsed but the timer was re-armed at 30ms; nothing yet.
	assert.Empty(t, rec.snapshot(), "re-arm must replace, not stack")

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
}

func TestTypingExplicitStopCancelsTimer(t *testing.T) {
	rec := &stopRecorder{}
	ty := NewTyping(40*time.Millisecond, rec.record)

	ty.Start("c1", "alice", "room1")
	ty.Stop("c1")
	require.Len(t, rec.snapshot(), 1, "explicit stop emits immediately")

	time.Sleep(80 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1, "canceled timer must not fire a second stop")
}

func TestTypingStartInNewRoomStopsOldRoom(t *testing.T) {
	rec := &stopRecorder{}
	ty := NewTyping(time.Second, rec.record)

	ty.Start("c1", "alice", "room1")
	ty.Start("c1", "alice", "room2")
	require.Len(t, rec.snapshot(), 1)
	assert.Equal(t, domain.RoomID("room1"), rec.snapshot()[0])
}

func TestTypingCancelEmitsNothing(t *testing.T) {
	rec := &stopRecorder{}
	ty := NewTyping(30*time.Millisecond, rec.record)

	ty.Start("c1", "alice", "room1")
	ty.Cancel("c1")
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestTypingConnectionsAreIndependent(t *testing.T) {
	rec := &stopRecorder{}
	ty := NewTyping(30*time.Millisecond, rec.record)

	ty.Start("c1", "alice", "room1")
	ty.Start("c2", "bob", "room1")
	ty.Cancel("c1")

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
}

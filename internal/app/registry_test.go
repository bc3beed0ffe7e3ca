package app

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkmln/parley/internal/core"
)

func TestRegistryTransitions(t *testing.T) {
	reg := NewRegistry()

	online := reg.Register("alice", "c1", &fakeConn{})
	require.True(t, online, "first connection must emit the online transition")
	require.True(t, reg.IsOnline("alice"))

	online = reg.Register("alice", "c2", &fakeConn{})
	assert.False(t, online, "second device must not re-emit online")

	offline := reg.Unregister("alice", "c1")
	assert.False(t, offline, "user still has a live connection")
	assert.True(t, reg.IsOnline("alice"))

	offline = reg.Unregister("alice", "c2")
	assert.True(t, offline, "last connection drained")
	assert.False(t, reg.IsOnline("alice"))
}

func TestRegistryUnknownUnregister(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Unregister("ghost", "c1"))

	reg.Register("bob", "c1", &fakeConn{})
	assert.False(t, reg.Unregister("bob", "no-such-conn"))
	assert.True(t, reg.IsOnline("bob"))
}

func TestRegistryConcurrentUnregisterSingleOfflineEvent(t *testing.T) {
	const conns = 32
	reg := NewRegistry()
	ids := make([]core.ConnID, conns)
	for i := range ids {
		ids[i] = core.ConnID(fmt.Sprintf("c%d", i))
		reg.Register("carol", ids[i], &fakeConn{})
	}

	var offline atomic.Int32
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id core.ConnID) {
			defer wg.Done()
			if reg.Unregister("carol", id) {
				offline.Add(1)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(1), offline.Load(), "racing disconnects must yield exactly one offline transition")
	assert.False(t, reg.IsOnline("carol"))
}

func TestRegistryConnectionsOfAndLookup(t *testing.T) {
	reg := NewRegistry()
	a := &fakeConn{}
	b := &fakeConn{}
	reg.Register("dave", "c1", a)
	reg.Register("dave", "c2", b)

	refs := reg.ConnectionsOf("dave")
	require.Len(t, refs, 2)

	ref, ok := reg.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, core.ConnID("c1"), ref.ID)
	assert.Equal(t, a, ref.Conn)

	reg.Unregister("dave", "c1")
	_, ok = reg.Lookup("c1")
	assert.False(t, ok)
}

func TestRegistryOnlineUsers(t *testing.T) {
	reg := NewRegistry()
	reg.Register("u1", "c1", &fakeConn{})
	reg.Register("u2", "c2", &fakeConn{})
	reg.Register("u2", "c3", &fakeConn{})
	reg.Unregister("u1", "c1")

	online := reg.OnlineUsers()
	assert.False(t, online["u1"])
	assert.True(t, online["u2"])
}

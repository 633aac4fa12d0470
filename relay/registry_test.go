package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndSnapshot(t *testing.T) {
	r := NewRegistry()
	r.RegisterInbound("10.0.0.2:50000", NewPeerConn(&fakeConn{}, 0))
	r.RegisterOutbound("10.0.0.2:7800", NewPeerConn(&fakeConn{}, 0))

	in, out := r.Len()
	assert.Equal(t, 1, in)
	assert.Equal(t, 1, out)

	keys := map[string]Direction{}
	for _, e := range r.Snapshot() {
		keys[e.Key] = e.Direction
	}
	assert.Equal(t, map[string]Direction{
		"10.0.0.2:50000": Inbound,
		"10.0.0.2:7800":  Outbound,
	}, keys)
}

func TestRegistry_SameKeyBothDirections(t *testing.T) {
	r := NewRegistry()
	inConn, outConn := &fakeConn{}, &fakeConn{}
	r.RegisterInbound("peer", NewPeerConn(inConn, 0))
	r.RegisterOutbound("peer", NewPeerConn(outConn, 0))

	assert.Len(t, r.Snapshot(), 2, "two sockets to one logical peer are distinct entries")

	r.Remove("peer")
	in, out := r.Len()
	assert.Zero(t, in)
	assert.Zero(t, out)
}

func TestRegistry_LastWriterWins(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{}
	r.RegisterOutbound("host:7800", NewPeerConn(first, 0))
	second := r.RegisterOutbound("host:7800", NewPeerConn(&fakeConn{}, 0))

	e, ok := r.Lookup(Outbound, "host:7800")
	require.True(t, ok)
	assert.Same(t, second, e)
	assert.False(t, first.isClosed(), "overwritten entry is not closed automatically")
}

func TestRegistry_ReplaceReturnsPrevious(t *testing.T) {
	r := NewRegistry()
	e, prev := r.ReplaceOutbound("host:7800", NewPeerConn(&fakeConn{}, 0))
	assert.Nil(t, prev)

	next, prev := r.ReplaceOutbound("host:7800", NewPeerConn(&fakeConn{}, 0))
	assert.Same(t, e, prev)
	cur, ok := r.Lookup(Outbound, "host:7800")
	require.True(t, ok)
	assert.Same(t, next, cur)

	_, prev = r.ReplaceInbound("host:7800", NewPeerConn(&fakeConn{}, 0))
	assert.Nil(t, prev, "directions are independent")
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	r := NewRegistry()
	r.RegisterInbound("a", NewPeerConn(&fakeConn{}, 0))
	r.RegisterInbound("b", NewPeerConn(&fakeConn{}, 0))

	r.Remove("a")
	once := r.Snapshot()
	r.Remove("a")
	twice := r.Snapshot()

	assert.Equal(t, once, twice)
	assert.Len(t, twice, 1)

	r.Remove("missing")
	assert.Len(t, r.Snapshot(), 1)
}

func TestRegistry_RemoveEntryIgnoresStale(t *testing.T) {
	r := NewRegistry()
	stale := r.RegisterOutbound("host:7800", NewPeerConn(&fakeConn{}, 0))
	fresh := r.RegisterOutbound("host:7800", NewPeerConn(&fakeConn{}, 0))

	assert.False(t, r.RemoveEntry(stale))
	e, ok := r.Lookup(Outbound, "host:7800")
	require.True(t, ok)
	assert.Same(t, fresh, e)

	assert.True(t, r.RemoveEntry(fresh))
	assert.False(t, r.RemoveEntry(fresh))
	assert.False(t, r.RemoveEntry(nil))
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.RegisterInbound("a", NewPeerConn(&fakeConn{}, 0))
	snap := r.Snapshot()
	r.Remove("a")
	assert.Len(t, snap, 1)
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("peer-%d", i)
			if i%2 == 0 {
				r.RegisterInbound(key, NewPeerConn(&fakeConn{}, 0))
			} else {
				r.RegisterOutbound(key, NewPeerConn(&fakeConn{}, 0))
			}
			_ = r.Snapshot()
			r.Remove(key)
			r.Remove(key)
		}(i)
	}
	wg.Wait()

	in, out := r.Len()
	assert.Zero(t, in)
	assert.Zero(t, out)
}

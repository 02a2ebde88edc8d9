package rooms

import (
	"errors"
	"sync"
	"testing"

	"github.com/quickchat/signaling/internal/core"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Join("g1", "alice", a)
	hub.Join("g1", "bob", b)
	hub.Join("g1", "carol", c)

	res := hub.Broadcast("g1", "alice", core.Frame(`{"event":"new-message"}`))
	if res.SentTo != 2 {
		t.Fatalf("sent_to = %d, want 2", res.SentTo)
	}
	if a.count() != 0 {
		t.Fatal("sender must not receive its own broadcast")
	}
	if b.count() != 1 || c.count() != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", b.count(), c.count())
	}
}

func TestHub_BroadcastReportsDropped(t *testing.T) {
	hub := NewHub()
	slow := &fakeConn{full: true}
	hub.Join("g1", "alice", &fakeConn{})
	hub.Join("g1", "bob", slow)

	res := hub.Broadcast("g1", "alice", core.Frame("x"))
	if res.SentTo != 0 {
		t.Fatalf("sent_to = %d, want 0", res.SentTo)
	}
	if len(res.Dropped) != 1 || res.Dropped[0] != "bob" {
		t.Fatalf("dropped = %v, want [bob]", res.Dropped)
	}
}

func TestHub_LeaveIsIdempotentAndScoped(t *testing.T) {
	hub := NewHub()
	hub.Join("g1", "alice", &fakeConn{})
	hub.Join("g2", "alice", &fakeConn{})

	hub.Leave("g1", "alice")
	hub.Leave("g1", "alice") // idempotent
	hub.Leave("g3", "alice") // unknown room

	if n := len(hub.Members("g1")); n != 0 {
		t.Fatalf("g1 members = %d, want 0", n)
	}
	if got := hub.Members("g2"); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("g2 members = %v, want [alice]", got)
	}
}

func TestHub_LeaveAllDropsEveryScope(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	hub.Join("g1", "alice", conn)
	hub.Join("g2", "alice", conn)
	hub.Join("g2", "bob", &fakeConn{})

	hub.LeaveAll("alice")

	if n := len(hub.Members("g1")); n != 0 {
		t.Fatalf("g1 members = %d, want 0", n)
	}
	if got := hub.Members("g2"); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("g2 members = %v, want [bob]", got)
	}
}

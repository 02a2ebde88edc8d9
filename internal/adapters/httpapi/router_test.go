package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quickchat/signaling/internal/adapters/ws"
	"github.com/quickchat/signaling/internal/chat"
	"github.com/quickchat/signaling/internal/config"
	"github.com/quickchat/signaling/internal/core"
	"github.com/quickchat/signaling/internal/groups"
	"github.com/quickchat/signaling/internal/presence"
	"github.com/quickchat/signaling/internal/relay"
	"github.com/quickchat/signaling/internal/rooms"
	"github.com/quickchat/signaling/internal/wire"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) received(t *testing.T, want wire.Event) []wire.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []wire.Envelope
	for _, f := range c.frames {
		env, err := wire.Decode(f)
		if err != nil {
			t.Fatalf("decode frame %s: %v", f, err)
		}
		if env.Event == want {
			out = append(out, env)
		}
	}
	return out
}

func newRouter(t *testing.T) (*gin.Engine, *presence.Registry, *rooms.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:         "release",
		Secret:       "test-secret",
		ReadLimit:    1 << 16,
		WriteTimeout: time.Second,
		SendBuffer:   16,
		GroupTimeout: time.Second,
	}
	reg := presence.NewRegistry()
	hub := rooms.NewHub()
	ctl := ws.NewController(reg, hub, groups.NewStaticService(), relay.NewRelay(reg), cfg)
	del := chat.NewDeliverer(reg, hub)
	return SetupRouter(context.Background(), cfg, ctl, reg, hub, del), reg, hub
}

func post(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_DirectMessageDelivery(t *testing.T) {
	r, reg, _ := newRouter(t)
	bob := &fakeConn{}
	reg.Register("bob", bob)

	w := post(t, r, "/api/internal/messages",
		`{"senderId": "alice", "receiverId": "bob", "text": "hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Delivered {
		t.Fatal("delivery to online receiver should report true")
	}
	msgs := bob.received(t, wire.EventNewMessage)
	if len(msgs) != 1 || msgs[0].Msg == nil || msgs[0].Msg.Text != "hi" {
		t.Fatalf("bob frames = %+v, want one 'hi' message", msgs)
	}
}

func TestRouter_DirectMessageOfflineReceiver(t *testing.T) {
	r, _, _ := newRouter(t)

	w := post(t, r, "/api/internal/messages",
		`{"senderId": "alice", "receiverId": "ghost", "text": "hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Delivered {
		t.Fatal("delivery to offline receiver should report false")
	}
}

func TestRouter_GroupMessageDelivery(t *testing.T) {
	r, _, hub := newRouter(t)
	alice, bob := &fakeConn{}, &fakeConn{}
	hub.Join("g1", "alice", alice)
	hub.Join("g1", "bob", bob)

	w := post(t, r, "/api/internal/messages",
		`{"senderId": "alice", "groupId": "g1", "text": "yo"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		SentTo int `json:"sentTo"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.SentTo != 1 {
		t.Fatalf("sentTo = %d, want 1", resp.SentTo)
	}
	if got := alice.received(t, wire.EventNewMessage); len(got) != 0 {
		t.Fatal("sender must not receive its own group message")
	}
}

func TestRouter_ProfileUpdatedBroadcast(t *testing.T) {
	r, reg, _ := newRouter(t)
	a, b := &fakeConn{}, &fakeConn{}
	reg.Register("alice", a)
	reg.Register("bob", b)

	w := post(t, r, "/api/internal/profile-updated",
		`{"id": "alice", "fullName": "Alice B"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	for name, conn := range map[string]*fakeConn{"alice": a, "bob": b} {
		got := conn.received(t, wire.EventProfileUpdated)
		if len(got) != 1 || got[0].User == nil || got[0].User.FullName != "Alice B" {
			t.Fatalf("%s profile frames = %+v, want one update", name, got)
		}
	}
}

func TestRouter_MalformedDeliveryBody(t *testing.T) {
	r, _, _ := newRouter(t)
	if w := post(t, r, "/api/internal/messages", `{"senderId":`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRouter_PresenceEndpoint(t *testing.T) {
	r, reg, _ := newRouter(t)
	reg.Register("bob", &fakeConn{})
	reg.Register("alice", &fakeConn{})

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Online []string `json:"online"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Online) != 2 || resp.Online[0] != "alice" || resp.Online[1] != "bob" {
		t.Fatalf("online = %v, want sorted [alice bob]", resp.Online)
	}
}

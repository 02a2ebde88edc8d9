// Package rooms scopes broadcast delivery to group conversations. The hub
// only mirrors membership while a connection is up; the group collaborator
// stays the source of truth.
package rooms

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quickchat/signaling/internal/core"
	"github.com/quickchat/signaling/internal/domain"
)

// PublishResult reports delivery stats to the caller.
type PublishResult struct {
	SentTo  int
	Dropped []domain.UserID
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[domain.GroupID]map[domain.UserID]core.SignalConnection
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[domain.GroupID]map[domain.UserID]core.SignalConnection)}
}

// Join adds the connection to the group's broadcast scope. Re-joining
// replaces the stored connection, mirroring the presence registry.
func (h *Hub) Join(gid domain.GroupID, uid domain.UserID, conn core.SignalConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[gid]
	if !ok {
		room = make(map[domain.UserID]core.SignalConnection)
		h.rooms[gid] = room
	}
	room[uid] = conn
	log.Info().Str("module", "rooms").Str("group", string(gid)).Str("user", string(uid)).Msg("joined scope")
}

// Leave removes the user from one scope. Idempotent; empty rooms are
// deleted.
func (h *Hub) Leave(gid domain.GroupID, uid domain.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[gid]
	if !ok {
		return
	}
	delete(room, uid)
	if len(room) == 0 {
		delete(h.rooms, gid)
	}
	log.Info().Str("module", "rooms").Str("group", string(gid)).Str("user", string(uid)).Msg("left scope")
}

// LeaveAll drops the user from every scope; called on disconnect.
func (h *Hub) LeaveAll(uid domain.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for gid, room := range h.rooms {
		if _, ok := room[uid]; !ok {
			continue
		}
		delete(room, uid)
		if len(room) == 0 {
			delete(h.rooms, gid)
		}
	}
}

// Broadcast sends frame to every member of the scope except from.
// Best-effort: backpressured members are reported, never retried.
func (h *Hub) Broadcast(gid domain.GroupID, from domain.UserID, frame core.Frame) PublishResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := PublishResult{}
	for uid, conn := range h.rooms[gid] {
		if uid == from {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, uid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "rooms").Str("group", string(gid)).Str("from", string(from)).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// Members returns the sorted member list of a scope.
func (h *Hub) Members(gid domain.GroupID) []domain.UserID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.UserID, 0, len(h.rooms[gid]))
	for uid := range h.rooms[gid] {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

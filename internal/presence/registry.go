// Package presence owns the map from user identifier to live connection.
// One entry per user: a reconnect replaces the previous connection.
package presence

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quickchat/signaling/internal/core"
	"github.com/quickchat/signaling/internal/domain"
	"github.com/quickchat/signaling/internal/wire"
)

type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]core.SignalConnection)}
}

// Register records conn as the live connection for id, replacing any prior
// entry (last writer wins), and broadcasts the new online set.
func (r *Registry) Register(id domain.UserID, conn core.SignalConnection) {
	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()
	log.Info().Str("module", "presence").Str("user", string(id)).Msg("registered")
	r.broadcastSnapshot()
}

// Unregister removes the entry for id. Idempotent if absent.
func (r *Registry) Unregister(id domain.UserID) {
	r.mu.Lock()
	_, existed := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if !existed {
		return
	}
	log.Info().Str("module", "presence").Str("user", string(id)).Msg("unregistered")
	r.broadcastSnapshot()
}

// Release removes the entry only if it still maps to conn. A disconnect
// racing with a reconnect must not tear down the replacement entry.
func (r *Registry) Release(id domain.UserID, conn core.SignalConnection) {
	r.mu.Lock()
	cur, ok := r.conns[id]
	if !ok || cur != conn {
		r.mu.Unlock()
		return
	}
	delete(r.conns, id)
	r.mu.Unlock()
	log.Info().Str("module", "presence").Str("user", string(id)).Msg("released")
	r.broadcastSnapshot()
}

// Resolve returns the live connection for id, if any.
func (r *Registry) Resolve(id domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Snapshot returns the sorted list of online user identifiers.
func (r *Registry) Snapshot() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []domain.UserID {
	out := make([]domain.UserID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ForEach calls fn for every registered connection. Fan-out helpers (chat
// delivery, profile updates) build on this.
func (r *Registry) ForEach(fn func(domain.UserID, core.SignalConnection)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, conn := range r.conns {
		fn(id, conn)
	}
}

func (r *Registry) broadcastSnapshot() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	frame, err := wire.Encode(wire.Envelope{
		Event: wire.EventPresenceSnapshot,
		Users: r.snapshotLocked(),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "presence").Msg("encode snapshot")
		return
	}
	for id, conn := range r.conns {
		if err := conn.TrySend(frame); err != nil {
			log.Warn().Str("module", "presence").Str("user", string(id)).Err(err).Msg("snapshot dropped")
		}
	}
}

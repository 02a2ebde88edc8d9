// Package chat exposes the delivery hooks the REST collaborator calls after
// persisting a message. Delivery is best-effort: an offline receiver reads
// the message later from storage.
package chat

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quickchat/signaling/internal/core"
	"github.com/quickchat/signaling/internal/domain"
	"github.com/quickchat/signaling/internal/presence"
	"github.com/quickchat/signaling/internal/rooms"
	"github.com/quickchat/signaling/internal/wire"
)

type Deliverer struct {
	Registry *presence.Registry
	Rooms    *rooms.Hub
}

func NewDeliverer(reg *presence.Registry, hub *rooms.Hub) *Deliverer {
	return &Deliverer{Registry: reg, Rooms: hub}
}

// DeliverDirect pushes msg to its receiver if online. Returns whether the
// receiver got it; the caller does not retry either way.
func (d *Deliverer) DeliverDirect(msg domain.ChatMessage) bool {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	conn, ok := d.Registry.Resolve(msg.ReceiverID)
	if !ok {
		log.Debug().Str("module", "chat").Str("receiver", string(msg.ReceiverID)).Msg("receiver offline")
		return false
	}
	frame, err := wire.Encode(wire.Envelope{Event: wire.EventNewMessage, Msg: &msg})
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("encode message")
		return false
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Str("module", "chat").Str("receiver", string(msg.ReceiverID)).Err(err).Msg("delivery dropped")
		return false
	}
	return true
}

// DeliverGroup fans msg out to the group's scope, excluding the sender.
func (d *Deliverer) DeliverGroup(msg domain.ChatMessage) rooms.PublishResult {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	frame, err := wire.Encode(wire.Envelope{Event: wire.EventNewMessage, Msg: &msg})
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("encode message")
		return rooms.PublishResult{}
	}
	return d.Rooms.Broadcast(msg.GroupID, msg.SenderID, frame)
}

// BroadcastProfileUpdate fans a changed profile to every connected client.
// Fed by the profile-update pub/sub collaborator.
func (d *Deliverer) BroadcastProfileUpdate(user domain.User) {
	frame, err := wire.Encode(wire.Envelope{Event: wire.EventProfileUpdated, User: &user})
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("encode profile update")
		return
	}
	d.Registry.ForEach(func(_ domain.UserID, conn core.SignalConnection) {
		_ = conn.TrySend(frame)
	})
}

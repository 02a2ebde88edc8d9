// Package relay forwards call-signaling envelopes between exactly two
// endpoints. It is a transparent forwarder: payloads are never inspected,
// never queued, never retried.
package relay

import (
	"github.com/rs/zerolog/log"

	"github.com/quickchat/signaling/internal/core"
	"github.com/quickchat/signaling/internal/domain"
	"github.com/quickchat/signaling/internal/presence"
	"github.com/quickchat/signaling/internal/wire"
)

type Relay struct {
	registry *presence.Registry
}

func NewRelay(reg *presence.Registry) *Relay {
	return &Relay{registry: reg}
}

// Forward routes env (one of the five call events) from its sender to
// env.To. An unreachable target is answered with user-unreachable for
// call-offer only; every other kind is fire-and-forget.
func (r *Relay) Forward(from domain.UserID, env wire.Envelope, sender core.SignalConnection) {
	dst, ok := r.registry.Resolve(env.To)
	if !ok {
		if env.Event == wire.EventCallOffer {
			r.notifyUnreachable(from, env.To, sender)
			return
		}
		log.Debug().Str("module", "relay").Str("event", string(env.Event)).
			Str("to", string(env.To)).Msg("target gone, dropped")
		return
	}

	out := env
	out.From = from
	out.To = ""
	frame, err := wire.Encode(out)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode forward")
		return
	}
	if err := dst.TrySend(frame); err != nil {
		// Best-effort, at-most-once: a slow target loses the message.
		log.Warn().Str("module", "relay").Str("event", string(env.Event)).
			Str("to", string(env.To)).Err(err).Msg("forward dropped")
		return
	}
	log.Debug().Str("module", "relay").Str("event", string(env.Event)).
		Str("from", string(from)).Str("to", string(env.To)).Msg("forwarded")
}

func (r *Relay) notifyUnreachable(from, to domain.UserID, sender core.SignalConnection) {
	frame, err := wire.Encode(wire.Envelope{
		Event:  wire.EventUserUnreachable,
		UserID: to,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode unreachable")
		return
	}
	if err := sender.TrySend(frame); err != nil {
		log.Warn().Str("module", "relay").Str("from", string(from)).Err(err).Msg("unreachable notice dropped")
	}
	log.Info().Str("module", "relay").Str("from", string(from)).Str("to", string(to)).Msg("target unreachable")
}

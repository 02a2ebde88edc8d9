// Package wire defines the typed envelopes exchanged over the persistent
// duplex connection. The server never interprets SDP or ICE payloads; it
// only validates envelope shape before routing.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/quickchat/signaling/internal/core"
	"github.com/quickchat/signaling/internal/domain"
)

type Event string

const (
	EventPresenceSnapshot Event = "presence-snapshot"
	EventCallOffer        Event = "call-offer"
	EventCallAnswer       Event = "call-answer"
	EventCallReject       Event = "call-reject"
	EventCallEnd          Event = "call-end"
	EventICECandidate     Event = "ice-candidate"
	EventJoinRoom         Event = "join-room"
	EventLeaveRoom        Event = "leave-room"
	EventUserUnreachable  Event = "user-unreachable"
	EventNewMessage       Event = "new-message"
	EventProfileUpdated   Event = "profile-updated"
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMissingTarget    = errors.New("missing target user id")
	ErrMissingGroup     = errors.New("missing group id")
	ErrMissingOffer     = errors.New("call-offer without offer description")
	ErrMissingAnswer    = errors.New("call-answer without answer description")
	ErrMissingCandidate = errors.New("ice-candidate without candidate")
)

// Envelope is the single frame shape for every event. Unused fields stay
// empty and are omitted on the wire.
type Envelope struct {
	Event Event         `json:"event"`
	To    domain.UserID `json:"to,omitempty"`
	From  domain.UserID `json:"from,omitempty"`

	GroupID domain.GroupID `json:"groupId,omitempty"`

	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Caller    *domain.CallerMeta         `json:"caller,omitempty"`

	Users  []domain.UserID     `json:"users,omitempty"`
	UserID domain.UserID       `json:"userId,omitempty"`
	Msg    *domain.ChatMessage `json:"message,omitempty"`
	User   *domain.User        `json:"user,omitempty"`
}

// CallEvents are the five relayed kinds. Everything else is handled by the
// server itself.
var CallEvents = map[Event]bool{
	EventCallOffer:    true,
	EventCallAnswer:   true,
	EventCallReject:   true,
	EventCallEnd:      true,
	EventICECandidate: true,
}

// Decode parses and validates a client frame. The server drops invalid
// frames; Decode never returns a partially usable envelope alongside an
// error.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// validate checks envelope shape for both directions of the link. A client
// frame addresses a target; once relayed the server clears To and stamps
// From, so a call event with a sender passes without one.
func (e *Envelope) validate() error {
	switch e.Event {
	case EventCallOffer:
		if e.To == "" && e.From == "" {
			return ErrMissingTarget
		}
		if e.Offer == nil || e.Offer.SDP == "" {
			return ErrMissingOffer
		}
	case EventCallAnswer:
		if e.To == "" && e.From == "" {
			return ErrMissingTarget
		}
		if e.Answer == nil || e.Answer.SDP == "" {
			return ErrMissingAnswer
		}
	case EventCallReject, EventCallEnd:
		if e.To == "" && e.From == "" {
			return ErrMissingTarget
		}
	case EventICECandidate:
		if e.To == "" && e.From == "" {
			return ErrMissingTarget
		}
		if e.Candidate == nil || e.Candidate.Candidate == "" {
			return ErrMissingCandidate
		}
	case EventJoinRoom, EventLeaveRoom:
		if e.GroupID == "" {
			return ErrMissingGroup
		}
	case EventPresenceSnapshot, EventUserUnreachable, EventNewMessage, EventProfileUpdated:
		// Server-originated; accepted as-is so the client decoder can share
		// this path.
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Event)
	}
	return nil
}

// Encode marshals an envelope into a transport frame.
func Encode(env Envelope) (core.Frame, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return core.Frame(b), nil
}

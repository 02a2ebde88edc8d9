package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/quickchat/signaling/internal/domain"
)

// Event is a trigger for the state machine: a local user action or a relay
// message. Events carry data, never behavior.
type Event interface{ isEvent() }

// Local user actions.

type StartCall struct{ Peer domain.UserID }
type AcceptCall struct{}
type RejectCall struct{}
type EndCall struct{}
type ToggleMute struct{}
type ToggleVideo struct{}

// Relay messages.

type OfferReceived struct {
	From   domain.UserID
	Caller domain.CallerMeta
	Offer  webrtc.SessionDescription
}

type AnswerReceived struct{ Answer webrtc.SessionDescription }
type RejectReceived struct{}
type EndReceived struct{}
type CandidateReceived struct{ Candidate webrtc.ICECandidateInit }
type PeerUnreachable struct{ UserID domain.UserID }

// Internal triggers.

// RingTimeout fires when a call stayed unanswered past the configured
// bound, on either side.
type RingTimeout struct{}

// NegotiationFailed funnels any failed effect (media acquisition,
// description exchange) back into the machine.
type NegotiationFailed struct{}

func (StartCall) isEvent()         {}
func (AcceptCall) isEvent()        {}
func (RejectCall) isEvent()        {}
func (EndCall) isEvent()           {}
func (ToggleMute) isEvent()        {}
func (ToggleVideo) isEvent()       {}
func (OfferReceived) isEvent()     {}
func (AnswerReceived) isEvent()    {}
func (RejectReceived) isEvent()    {}
func (EndReceived) isEvent()       {}
func (CandidateReceived) isEvent() {}
func (PeerUnreachable) isEvent()   {}
func (RingTimeout) isEvent()       {}
func (NegotiationFailed) isEvent() {}

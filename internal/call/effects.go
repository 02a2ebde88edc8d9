package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/quickchat/signaling/internal/domain"
)

// Effect is an outbound side effect requested by a transition: media and
// peer-connection work, ringtone control, relay emission. The machine never
// performs effects itself; the Session driver executes them in order.
type Effect interface{ isEffect() }

// PlaceCall acquires media, builds the peer connection, generates the local
// offer and emits call-offer.
type PlaceCall struct{ Peer domain.UserID }

// AnswerCall acquires media, builds the peer connection, applies the
// notice's offer as remote description, generates the answer and emits
// call-answer.
type AnswerCall struct{ Notice IncomingCallNotice }

// ApplyRemoteAnswer sets the received answer as remote description.
type ApplyRemoteAnswer struct{ Answer webrtc.SessionDescription }

// ApplyCandidates applies candidates to the peer connection in the given
// order. Used both for immediate application and for buffer flushes.
type ApplyCandidates struct{ Candidates []webrtc.ICECandidateInit }

// EmitReject sends call-reject to To. Busy marks the auto-reject sent to a
// second caller while a call is already active.
type EmitReject struct {
	To   domain.UserID
	Busy bool
}

// EmitEnd sends call-end to To.
type EmitEnd struct{ To domain.UserID }

type StartRinging struct{}
type StopRinging struct{}

// Teardown releases peer connection, media and ringtone. Safe to run from
// any state, any number of times.
type Teardown struct{}

type FlipAudio struct{}
type FlipVideo struct{}

func (PlaceCall) isEffect()         {}
func (AnswerCall) isEffect()        {}
func (ApplyRemoteAnswer) isEffect() {}
func (ApplyCandidates) isEffect()   {}
func (EmitReject) isEffect()        {}
func (EmitEnd) isEffect()           {}
func (StartRinging) isEffect()      {}
func (StopRinging) isEffect()       {}
func (Teardown) isEffect()          {}
func (FlipAudio) isEffect()         {}
func (FlipVideo) isEffect()         {}

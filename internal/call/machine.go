// Package call implements the client-side call lifecycle: a pure state
// machine producing effects, a Session driver that executes them, and the
// ICE candidate buffer that absorbs candidates racing ahead of the remote
// description.
package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/quickchat/signaling/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateRinging
	StateOutgoing
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRinging:
		return "ringing"
	case StateOutgoing:
		return "outgoing"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

type Role int

const (
	RoleNone Role = iota
	RoleCaller
	RoleCallee
)

// IncomingCallNotice holds an offer awaiting a user decision. It exists
// only between call-offer arrival and accept/reject/cancel.
type IncomingCallNotice struct {
	From   domain.UserID
	Caller domain.CallerMeta
	Offer  webrtc.SessionDescription
}

// Machine is the typed transition core: Apply(event) advances the state and
// returns the effects the driver must perform. It owns no media, no
// network, no timers, which keeps every transition unit-testable.
//
// At most one call is active: Apply ignores a second StartCall or
// AcceptCall while not in the state that permits it.
type Machine struct {
	phase     State
	role      Role
	peer      domain.UserID
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	notice    *IncomingCallNotice
}

func NewMachine() *Machine {
	return &Machine{}
}

func (m *Machine) Phase() State        { return m.phase }
func (m *Machine) Role() Role          { return m.role }
func (m *Machine) Peer() domain.UserID { return m.peer }
func (m *Machine) PendingCount() int   { return len(m.pending) }
func (m *Machine) RemoteSet() bool     { return m.remoteSet }

// Notice returns a copy of the pending incoming-call notice, if any.
func (m *Machine) Notice() (IncomingCallNotice, bool) {
	if m.notice == nil {
		return IncomingCallNotice{}, false
	}
	return *m.notice, true
}

func (m *Machine) reset() {
	m.phase = StateIdle
	m.role = RoleNone
	m.peer = ""
	m.remoteSet = false
	m.pending = nil
	m.notice = nil
}

// Apply is the transition function: (state, event) -> (state, effects).
func (m *Machine) Apply(ev Event) []Effect {
	switch ev := ev.(type) {
	case StartCall:
		return m.onStart(ev)
	case OfferReceived:
		return m.onOffer(ev)
	case AcceptCall:
		return m.onAccept()
	case RejectCall:
		return m.onReject()
	case AnswerReceived:
		return m.onAnswer(ev)
	case CandidateReceived:
		return m.onCandidate(ev)
	case EndCall:
		return m.onEnd()
	case RejectReceived, EndReceived:
		return m.onRemoteHangup()
	case PeerUnreachable:
		return m.onUnreachable(ev)
	case RingTimeout:
		return m.onRingTimeout()
	case NegotiationFailed:
		return m.onFailure()
	case ToggleMute:
		if m.phase == StateOutgoing || m.phase == StateConnected {
			return []Effect{FlipAudio{}}
		}
		return nil
	case ToggleVideo:
		if m.phase == StateOutgoing || m.phase == StateConnected {
			return []Effect{FlipVideo{}}
		}
		return nil
	}
	return nil
}

func (m *Machine) onStart(ev StartCall) []Effect {
	if m.phase != StateIdle {
		return nil
	}
	m.phase = StateOutgoing
	m.role = RoleCaller
	m.peer = ev.Peer
	m.remoteSet = false
	return []Effect{PlaceCall{Peer: ev.Peer}}
}

func (m *Machine) onOffer(ev OfferReceived) []Effect {
	if m.phase != StateIdle {
		// Busy: the active call is untouched, the second caller gets an
		// explicit reject instead of ringing forever.
		return []Effect{EmitReject{To: ev.From, Busy: true}}
	}
	m.phase = StateRinging
	m.notice = &IncomingCallNotice{From: ev.From, Caller: ev.Caller, Offer: ev.Offer}
	return []Effect{StartRinging{}}
}

func (m *Machine) onAccept() []Effect {
	if m.phase != StateRinging || m.notice == nil {
		return nil
	}
	n := *m.notice
	m.notice = nil
	m.phase = StateConnected
	m.role = RoleCallee
	m.peer = n.From
	m.remoteSet = true // the offer becomes the remote description
	effs := []Effect{StopRinging{}, AnswerCall{Notice: n}}
	if len(m.pending) > 0 {
		effs = append(effs, ApplyCandidates{Candidates: m.pending})
		m.pending = nil
	}
	return effs
}

func (m *Machine) onReject() []Effect {
	if m.phase != StateRinging || m.notice == nil {
		return nil
	}
	to := m.notice.From
	m.reset()
	return []Effect{StopRinging{}, EmitReject{To: to}, Teardown{}}
}

func (m *Machine) onAnswer(ev AnswerReceived) []Effect {
	if m.phase != StateOutgoing {
		return nil
	}
	m.phase = StateConnected
	m.remoteSet = true
	effs := []Effect{ApplyRemoteAnswer{Answer: ev.Answer}}
	if len(m.pending) > 0 {
		effs = append(effs, ApplyCandidates{Candidates: m.pending})
		m.pending = nil
	}
	return effs
}

func (m *Machine) onCandidate(ev CandidateReceived) []Effect {
	if m.phase == StateIdle {
		return nil
	}
	if m.remoteSet {
		return []Effect{ApplyCandidates{Candidates: []webrtc.ICECandidateInit{ev.Candidate}}}
	}
	// Arrival order is preserved; the buffer is flushed exactly once when
	// the remote description lands.
	m.pending = append(m.pending, ev.Candidate)
	return nil
}

func (m *Machine) onEnd() []Effect {
	if m.phase != StateOutgoing && m.phase != StateConnected {
		return nil
	}
	to := m.peer
	m.reset()
	return []Effect{EmitEnd{To: to}, Teardown{}}
}

func (m *Machine) onRemoteHangup() []Effect {
	if m.phase == StateIdle {
		return nil
	}
	m.reset()
	return []Effect{Teardown{}}
}

func (m *Machine) onUnreachable(ev PeerUnreachable) []Effect {
	if m.phase != StateOutgoing || ev.UserID != m.peer {
		return nil
	}
	m.reset()
	return []Effect{Teardown{}}
}

func (m *Machine) onRingTimeout() []Effect {
	switch m.phase {
	case StateRinging:
		to := m.notice.From
		m.reset()
		return []Effect{EmitReject{To: to}, Teardown{}}
	case StateOutgoing:
		to := m.peer
		m.reset()
		return []Effect{EmitEnd{To: to}, Teardown{}}
	}
	return nil
}

func (m *Machine) onFailure() []Effect {
	if m.phase == StateIdle {
		return nil
	}
	m.reset()
	return []Effect{Teardown{}}
}

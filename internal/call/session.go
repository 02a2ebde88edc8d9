package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/quickchat/signaling/internal/domain"
	"github.com/quickchat/signaling/internal/wire"
)

var (
	// ErrMediaUnavailable wraps a refused or failed local device
	// acquisition. The call attempt is aborted and state returns to idle.
	ErrMediaUnavailable = errors.New("media unavailable")
	// ErrNegotiation wraps a rejected session description. The affected
	// call is torn down, not retried.
	ErrNegotiation = errors.New("negotiation failed")
)

// MediaStream is the acquired local media. Toggles flip track enabled flags
// without renegotiation.
type MediaStream interface {
	ToggleAudio() bool
	ToggleVideo() bool
	AudioEnabled() bool
	VideoEnabled() bool
	Stop()
}

// MediaDevices acquires local audio+video media.
type MediaDevices interface {
	GetUserMedia(ctx context.Context) (MediaStream, error)
}

// Peer is the negotiation surface of a peer connection.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	OnICECandidate(func(webrtc.ICECandidateInit))
	Close() error
}

// PeerFactory builds a peer connection with the local tracks attached.
type PeerFactory interface {
	NewPeer(stream MediaStream) (Peer, error)
}

// Ringer observes ringing transitions. Side effects only, no core logic.
type Ringer interface {
	Start()
	Stop()
}

// Emitter sends an outbound relay envelope.
type Emitter interface {
	Emit(env wire.Envelope) error
}

type noopRinger struct{}

func (noopRinger) Start() {}
func (noopRinger) Stop()  {}

// SessionConfig wires the Session's collaborators. Everything is injected
// so the lifecycle can be tested without devices or a live transport.
type SessionConfig struct {
	Self    domain.User
	Devices MediaDevices
	Peers   PeerFactory
	Ringer  Ringer
	Emitter Emitter
	// RingTimeout bounds unanswered calls on both sides. Zero disables the
	// timeout (a call then rings until an explicit answer/reject/end).
	RingTimeout time.Duration
}

// Session drives the machine: it serializes triggering events, executes
// effects against the injected collaborators, and owns the ring timer.
// A second event arriving during an in-flight transition waits behind the
// mutex; transitions never interleave.
type Session struct {
	mu      sync.Mutex
	machine *Machine
	cfg     SessionConfig

	stream MediaStream
	peer   Peer

	timer    *time.Timer
	timerGen int
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Ringer == nil {
		cfg.Ringer = noopRinger{}
	}
	return &Session{machine: NewMachine(), cfg: cfg}
}

// State reports the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Phase()
}

// Notice returns the pending incoming-call notice, if any.
func (s *Session) Notice() (IncomingCallNotice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Notice()
}

// Start places a call to peer. No-op unless idle. A media or negotiation
// failure aborts back to idle and is returned to the caller.
func (s *Session) Start(ctx context.Context, peer domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, StartCall{Peer: peer})
}

// Accept promotes the pending notice into an active call.
func (s *Session) Accept(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, AcceptCall{})
}

// Reject declines the pending notice.
func (s *Session) Reject() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(context.Background(), RejectCall{})
}

// End hangs up the active or outgoing call. Idempotent.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.apply(context.Background(), EndCall{})
}

// ToggleMute flips the audio track's enabled flag. Valid while a call has
// local media; otherwise a no-op.
func (s *Session) ToggleMute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.apply(context.Background(), ToggleMute{})
}

// ToggleVideo flips the video track's enabled flag.
func (s *Session) ToggleVideo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.apply(context.Background(), ToggleVideo{})
}

// HandleEnvelope feeds a relay message into the machine. Non-call events
// are ignored here.
func (s *Session) HandleEnvelope(ctx context.Context, env wire.Envelope) error {
	ev, ok := eventFromEnvelope(env)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ctx, ev)
}

func eventFromEnvelope(env wire.Envelope) (Event, bool) {
	switch env.Event {
	case wire.EventCallOffer:
		if env.Offer == nil {
			return nil, false
		}
		caller := domain.CallerMeta{ID: env.From}
		if env.Caller != nil {
			caller = *env.Caller
		}
		return OfferReceived{From: env.From, Caller: caller, Offer: *env.Offer}, true
	case wire.EventCallAnswer:
		if env.Answer == nil {
			return nil, false
		}
		return AnswerReceived{Answer: *env.Answer}, true
	case wire.EventCallReject:
		return RejectReceived{}, true
	case wire.EventCallEnd:
		return EndReceived{}, true
	case wire.EventICECandidate:
		if env.Candidate == nil {
			return nil, false
		}
		return CandidateReceived{Candidate: *env.Candidate}, true
	case wire.EventUserUnreachable:
		return PeerUnreachable{UserID: env.UserID}, true
	}
	return nil, false
}

// apply runs one transition under the lock: advance the machine, execute
// effects, resync the ring timer. A failed effect funnels into
// NegotiationFailed so the machine lands back in idle.
func (s *Session) apply(ctx context.Context, ev Event) error {
	effs := s.machine.Apply(ev)
	err := s.runEffects(ctx, effs)
	if err != nil {
		// An accept that fails locally must tell the caller; otherwise they
		// sit in outgoing until the ring timeout.
		if _, accepting := ev.(AcceptCall); accepting {
			if peer := s.machine.Peer(); peer != "" {
				s.send(wire.Envelope{Event: wire.EventCallReject, To: peer})
			}
		}
		for _, eff := range s.machine.Apply(NegotiationFailed{}) {
			if _, ok := eff.(Teardown); ok {
				s.teardown()
			}
		}
	}
	s.syncTimer()
	return err
}

func (s *Session) runEffects(ctx context.Context, effs []Effect) error {
	for _, eff := range effs {
		if err := s.runEffect(ctx, eff); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) runEffect(ctx context.Context, eff Effect) error {
	switch eff := eff.(type) {
	case PlaceCall:
		return s.placeCall(ctx, eff.Peer)
	case AnswerCall:
		return s.answerCall(ctx, eff.Notice)
	case ApplyRemoteAnswer:
		if err := s.peer.SetRemoteDescription(eff.Answer); err != nil {
			return fmt.Errorf("%w: set remote answer: %v", ErrNegotiation, err)
		}
		return nil
	case ApplyCandidates:
		for _, cand := range eff.Candidates {
			if err := s.peer.AddICECandidate(cand); err != nil {
				// A single bad candidate does not doom the call; others
				// may still complete the path.
				log.Warn().Err(err).Str("module", "call").Msg("add ice candidate")
			}
		}
		return nil
	case EmitReject:
		s.send(wire.Envelope{Event: wire.EventCallReject, To: eff.To})
		if eff.Busy {
			log.Info().Str("module", "call").Str("to", string(eff.To)).Msg("busy, rejected second offer")
		}
		return nil
	case EmitEnd:
		s.send(wire.Envelope{Event: wire.EventCallEnd, To: eff.To})
		return nil
	case StartRinging:
		s.cfg.Ringer.Start()
		return nil
	case StopRinging:
		s.cfg.Ringer.Stop()
		return nil
	case Teardown:
		s.teardown()
		return nil
	case FlipAudio:
		if s.stream != nil {
			s.stream.ToggleAudio()
		}
		return nil
	case FlipVideo:
		if s.stream != nil {
			s.stream.ToggleVideo()
		}
		return nil
	}
	return nil
}

func (s *Session) placeCall(ctx context.Context, peer domain.UserID) error {
	stream, err := s.cfg.Devices.GetUserMedia(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	s.stream = stream

	pc, err := s.cfg.Peers.NewPeer(stream)
	if err != nil {
		return fmt.Errorf("%w: new peer: %v", ErrNegotiation, err)
	}
	s.peer = pc
	s.watchCandidates(pc, peer)

	offer, err := pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("%w: create offer: %v", ErrNegotiation, err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: set local offer: %v", ErrNegotiation, err)
	}

	meta := s.cfg.Self.CallerMeta()
	s.send(wire.Envelope{
		Event:  wire.EventCallOffer,
		To:     peer,
		Offer:  &offer,
		Caller: &meta,
	})
	log.Info().Str("module", "call").Str("peer", string(peer)).Msg("placed call")
	return nil
}

func (s *Session) answerCall(ctx context.Context, n IncomingCallNotice) error {
	stream, err := s.cfg.Devices.GetUserMedia(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	s.stream = stream

	pc, err := s.cfg.Peers.NewPeer(stream)
	if err != nil {
		return fmt.Errorf("%w: new peer: %v", ErrNegotiation, err)
	}
	s.peer = pc
	s.watchCandidates(pc, n.From)

	if err := pc.SetRemoteDescription(n.Offer); err != nil {
		return fmt.Errorf("%w: set remote offer: %v", ErrNegotiation, err)
	}
	answer, err := pc.CreateAnswer()
	if err != nil {
		return fmt.Errorf("%w: create answer: %v", ErrNegotiation, err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%w: set local answer: %v", ErrNegotiation, err)
	}

	s.send(wire.Envelope{
		Event:  wire.EventCallAnswer,
		To:     n.From,
		Answer: &answer,
	})
	log.Info().Str("module", "call").Str("peer", string(n.From)).Msg("answered call")
	return nil
}

// watchCandidates forwards locally gathered candidates to the peer. The
// callback fires from the peer connection's goroutine, so it must not take
// the session lock.
func (s *Session) watchCandidates(pc Peer, to domain.UserID) {
	pc.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		s.send(wire.Envelope{
			Event:     wire.EventICECandidate,
			To:        to,
			Candidate: &cand,
		})
	})
}

func (s *Session) send(env wire.Envelope) {
	if err := s.cfg.Emitter.Emit(env); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("event", string(env.Event)).Msg("emit failed")
	}
}

// teardown is idempotent: every field is nil-checked and cleared.
func (s *Session) teardown() {
	s.cfg.Ringer.Stop()
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			log.Warn().Err(err).Str("module", "call").Msg("peer close")
		}
		s.peer = nil
	}
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
}

// syncTimer arms the ring timer while a call is unanswered and disarms it
// everywhere else. A generation counter keeps a stale fire from touching a
// newer call.
func (s *Session) syncTimer() {
	if s.cfg.RingTimeout <= 0 {
		return
	}
	ringing := s.machine.Phase() == StateRinging || s.machine.Phase() == StateOutgoing
	switch {
	case ringing && s.timer == nil:
		s.timerGen++
		gen := s.timerGen
		s.timer = time.AfterFunc(s.cfg.RingTimeout, func() { s.onRingTimeout(gen) })
	case !ringing && s.timer != nil:
		s.timer.Stop()
		s.timer = nil
		s.timerGen++
	}
}

func (s *Session) onRingTimeout(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen {
		return
	}
	s.timer = nil
	log.Info().Str("module", "call").Str("state", s.machine.Phase().String()).Msg("ring timeout")
	_ = s.apply(context.Background(), RingTimeout{})
}

package call

import (
	"fmt"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/quickchat/signaling/internal/domain"
)

func offerEvent(from string) OfferReceived {
	return OfferReceived{
		From:   domain.UserID(from),
		Caller: domain.CallerMeta{ID: domain.UserID(from), FullName: from},
		Offer:  webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"},
	}
}

func answerEvent() AnswerReceived {
	return AnswerReceived{Answer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}}
}

func candidate(i int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d", i)}
}

func TestMachine_CallerPath(t *testing.T) {
	m := NewMachine()

	effs := m.Apply(StartCall{Peer: "bob"})
	if m.Phase() != StateOutgoing {
		t.Fatalf("phase = %v, want outgoing", m.Phase())
	}
	if len(effs) != 1 {
		t.Fatalf("effects = %v, want one PlaceCall", effs)
	}
	if pc, ok := effs[0].(PlaceCall); !ok || pc.Peer != "bob" {
		t.Fatalf("effect = %#v, want PlaceCall{bob}", effs[0])
	}

	effs = m.Apply(answerEvent())
	if m.Phase() != StateConnected {
		t.Fatalf("phase = %v, want connected", m.Phase())
	}
	if _, ok := effs[0].(ApplyRemoteAnswer); !ok {
		t.Fatalf("first effect = %#v, want ApplyRemoteAnswer", effs[0])
	}

	effs = m.Apply(EndCall{})
	if m.Phase() != StateIdle {
		t.Fatalf("phase = %v, want idle", m.Phase())
	}
	if ee, ok := effs[0].(EmitEnd); !ok || ee.To != "bob" {
		t.Fatalf("effect = %#v, want EmitEnd{bob}", effs[0])
	}
}

func TestMachine_CalleePath(t *testing.T) {
	m := NewMachine()

	effs := m.Apply(offerEvent("alice"))
	if m.Phase() != StateRinging {
		t.Fatalf("phase = %v, want ringing", m.Phase())
	}
	if _, ok := effs[0].(StartRinging); !ok {
		t.Fatalf("effect = %#v, want StartRinging", effs[0])
	}
	if n, ok := m.Notice(); !ok || n.From != "alice" || n.Caller.FullName != "alice" {
		t.Fatalf("notice = %+v, ok=%v", n, ok)
	}

	effs = m.Apply(AcceptCall{})
	if m.Phase() != StateConnected {
		t.Fatalf("phase = %v, want connected", m.Phase())
	}
	if _, ok := effs[0].(StopRinging); !ok {
		t.Fatalf("first effect = %#v, want StopRinging", effs[0])
	}
	ac, ok := effs[1].(AnswerCall)
	if !ok || ac.Notice.From != "alice" {
		t.Fatalf("second effect = %#v, want AnswerCall from alice", effs[1])
	}
	if _, ok := m.Notice(); ok {
		t.Fatal("notice must be cleared after accept")
	}
}

func TestMachine_RejectPath(t *testing.T) {
	m := NewMachine()
	m.Apply(offerEvent("alice"))

	effs := m.Apply(RejectCall{})
	if m.Phase() != StateIdle {
		t.Fatalf("phase = %v, want idle", m.Phase())
	}
	var rejected bool
	for _, eff := range effs {
		if er, ok := eff.(EmitReject); ok && er.To == "alice" && !er.Busy {
			rejected = true
		}
	}
	if !rejected {
		t.Fatalf("effects = %#v, want EmitReject to alice", effs)
	}

	// Caller side: remote reject while outgoing.
	m2 := NewMachine()
	m2.Apply(StartCall{Peer: "bob"})
	effs = m2.Apply(RejectReceived{})
	if m2.Phase() != StateIdle {
		t.Fatalf("phase = %v, want idle (never connected)", m2.Phase())
	}
	if _, ok := effs[0].(Teardown); !ok {
		t.Fatalf("effect = %#v, want Teardown", effs[0])
	}
}

func TestMachine_SecondStartAndAcceptAreNoOps(t *testing.T) {
	m := NewMachine()
	m.Apply(StartCall{Peer: "bob"})

	if effs := m.Apply(StartCall{Peer: "carol"}); effs != nil {
		t.Fatalf("second start produced effects: %#v", effs)
	}
	if m.Peer() != "bob" {
		t.Fatalf("peer = %q, want bob untouched", m.Peer())
	}
	if effs := m.Apply(AcceptCall{}); effs != nil {
		t.Fatalf("accept without notice produced effects: %#v", effs)
	}
}

func TestMachine_BusyRejectsSecondOffer(t *testing.T) {
	m := NewMachine()
	m.Apply(StartCall{Peer: "bob"})
	m.Apply(answerEvent())

	effs := m.Apply(offerEvent("carol"))
	if m.Phase() != StateConnected {
		t.Fatal("active call must be untouched by a second offer")
	}
	if _, ok := m.Notice(); ok {
		t.Fatal("no notice may be created while busy")
	}
	er, ok := effs[0].(EmitReject)
	if !ok || er.To != "carol" || !er.Busy {
		t.Fatalf("effect = %#v, want busy EmitReject to carol", effs[0])
	}
}

func TestMachine_CandidatesBufferUntilRemoteDescription(t *testing.T) {
	m := NewMachine()
	m.Apply(StartCall{Peer: "bob"})

	// Three candidates race ahead of the answer.
	for i := 1; i <= 3; i++ {
		if effs := m.Apply(CandidateReceived{Candidate: candidate(i)}); effs != nil {
			t.Fatalf("candidate %d applied before remote description: %#v", i, effs)
		}
	}
	if m.PendingCount() != 3 {
		t.Fatalf("pending = %d, want 3", m.PendingCount())
	}

	effs := m.Apply(answerEvent())
	if len(effs) != 2 {
		t.Fatalf("effects = %#v, want [ApplyRemoteAnswer ApplyCandidates]", effs)
	}
	flush, ok := effs[1].(ApplyCandidates)
	if !ok {
		t.Fatalf("second effect = %#v, want ApplyCandidates", effs[1])
	}
	for i, cand := range flush.Candidates {
		if want := fmt.Sprintf("candidate:%d", i+1); cand.Candidate != want {
			t.Fatalf("flush order broken: got %q at %d, want %q", cand.Candidate, i, want)
		}
	}
	if m.PendingCount() != 0 {
		t.Fatal("buffer must be cleared after flush")
	}

	// Flush happens exactly once; later candidates apply immediately.
	effs = m.Apply(CandidateReceived{Candidate: candidate(4)})
	ac, ok := effs[0].(ApplyCandidates)
	if !ok || len(ac.Candidates) != 1 || ac.Candidates[0].Candidate != "candidate:4" {
		t.Fatalf("post-answer candidate not applied immediately: %#v", effs)
	}
}

func TestMachine_CandidatesWhileRingingFlushOnAccept(t *testing.T) {
	m := NewMachine()
	m.Apply(offerEvent("alice"))
	m.Apply(CandidateReceived{Candidate: candidate(1)})
	m.Apply(CandidateReceived{Candidate: candidate(2)})

	effs := m.Apply(AcceptCall{})
	if len(effs) != 3 {
		t.Fatalf("effects = %#v, want [StopRinging AnswerCall ApplyCandidates]", effs)
	}
	flush, ok := effs[2].(ApplyCandidates)
	if !ok || len(flush.Candidates) != 2 {
		t.Fatalf("third effect = %#v, want two buffered candidates", effs[2])
	}
	if flush.Candidates[0].Candidate != "candidate:1" || flush.Candidates[1].Candidate != "candidate:2" {
		t.Fatalf("flush order broken: %#v", flush.Candidates)
	}
}

func TestMachine_CandidateWhileIdleIsDropped(t *testing.T) {
	m := NewMachine()
	if effs := m.Apply(CandidateReceived{Candidate: candidate(1)}); effs != nil {
		t.Fatalf("idle candidate produced effects: %#v", effs)
	}
	if m.PendingCount() != 0 {
		t.Fatal("idle candidate must not be buffered")
	}
}

func TestMachine_TeardownIdempotent(t *testing.T) {
	m := NewMachine()
	m.Apply(StartCall{Peer: "bob"})
	m.Apply(answerEvent())

	if effs := m.Apply(EndCall{}); len(effs) == 0 {
		t.Fatal("first end should tear down")
	}
	if effs := m.Apply(EndCall{}); effs != nil {
		t.Fatalf("second end produced effects: %#v", effs)
	}
	if effs := m.Apply(EndReceived{}); effs != nil {
		t.Fatalf("end after end produced effects: %#v", effs)
	}
	if m.Phase() != StateIdle {
		t.Fatalf("phase = %v, want idle", m.Phase())
	}
}

func TestMachine_RingTimeout(t *testing.T) {
	// Callee side: unanswered incoming call rejects.
	m := NewMachine()
	m.Apply(offerEvent("alice"))
	effs := m.Apply(RingTimeout{})
	if m.Phase() != StateIdle {
		t.Fatalf("phase = %v, want idle", m.Phase())
	}
	if er, ok := effs[0].(EmitReject); !ok || er.To != "alice" {
		t.Fatalf("effect = %#v, want EmitReject to alice", effs[0])
	}

	// Caller side: abandoned outgoing call ends.
	m2 := NewMachine()
	m2.Apply(StartCall{Peer: "bob"})
	effs = m2.Apply(RingTimeout{})
	if ee, ok := effs[0].(EmitEnd); !ok || ee.To != "bob" {
		t.Fatalf("effect = %#v, want EmitEnd to bob", effs[0])
	}

	// Connected calls never time out.
	m3 := NewMachine()
	m3.Apply(StartCall{Peer: "bob"})
	m3.Apply(answerEvent())
	if effs := m3.Apply(RingTimeout{}); effs != nil {
		t.Fatalf("connected ring timeout produced effects: %#v", effs)
	}
}

func TestMachine_UnreachablePeerAbortsOutgoing(t *testing.T) {
	m := NewMachine()
	m.Apply(StartCall{Peer: "carol"})

	if effs := m.Apply(PeerUnreachable{UserID: "someone-else"}); effs != nil {
		t.Fatalf("unrelated unreachable produced effects: %#v", effs)
	}
	effs := m.Apply(PeerUnreachable{UserID: "carol"})
	if m.Phase() != StateIdle {
		t.Fatalf("phase = %v, want idle", m.Phase())
	}
	if _, ok := effs[0].(Teardown); !ok {
		t.Fatalf("effect = %#v, want Teardown", effs[0])
	}
}

func TestMachine_TogglesOnlyWithActiveMedia(t *testing.T) {
	m := NewMachine()
	if effs := m.Apply(ToggleMute{}); effs != nil {
		t.Fatalf("idle toggle produced effects: %#v", effs)
	}

	m.Apply(StartCall{Peer: "bob"})
	if _, ok := m.Apply(ToggleMute{})[0].(FlipAudio); !ok {
		t.Fatal("outgoing toggle mute should flip audio")
	}
	m.Apply(answerEvent())
	if _, ok := m.Apply(ToggleVideo{})[0].(FlipVideo); !ok {
		t.Fatal("connected toggle video should flip video")
	}
}

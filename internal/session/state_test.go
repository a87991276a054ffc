package session

import "testing"

func TestNextSeqNoContentRelatedIncrements(t *testing.T) {
	s := NewState(make([]byte, 256), 1, 1, 0, 1)
	first := s.nextSeqNo(true)
	second := s.nextSeqNo(true)
	if first != 1 || second != 3 {
		t.Fatalf("expected content-related seq_no sequence 1,3; got %d,%d", first, second)
	}
}

func TestNextSeqNoNonContentRelatedDoesNotAdvance(t *testing.T) {
	s := NewState(make([]byte, 256), 1, 1, 0, 1)
	s.nextSeqNo(true) // SeqNo counter is now 1
	a := s.nextSeqNo(false)
	b := s.nextSeqNo(false)
	if a != b {
		t.Fatalf("expected repeated reads without a content-related message in between to be stable, got %d then %d", a, b)
	}
	if a != 2 {
		t.Fatalf("expected 2*SeqNo (2), got %d", a)
	}
}

func TestPendingAddPopRoundTrip(t *testing.T) {
	s := NewState(make([]byte, 256), 1, 1, 0, 1)
	p := &PendingRequest{Response: make(chan Response, 1)}
	s.addPending(42, p)
	got, ok := s.popPending(42)
	if !ok || got != p {
		t.Fatal("expected to get back the same pending request")
	}
	if _, ok := s.popPending(42); ok {
		t.Fatal("expected popPending to be a one-shot removal")
	}
}

func TestDrainAcksEmptiesAndResets(t *testing.T) {
	s := NewState(make([]byte, 256), 1, 1, 0, 1)
	if acks := s.drainAcks(); acks != nil {
		t.Fatalf("expected nil from draining an empty ack set, got %v", acks)
	}
	s.addAck(1)
	s.addAck(2)
	acks := s.drainAcks()
	if len(acks) != 2 {
		t.Fatalf("expected 2 acks, got %d", len(acks))
	}
	if again := s.drainAcks(); again != nil {
		t.Fatalf("expected the ack set to be empty after draining, got %v", again)
	}
}

func TestResetAfterNewSessionClearsAcksAndUpdatesSalt(t *testing.T) {
	s := NewState(make([]byte, 256), 1, 1, 0, 1)
	s.addAck(99)
	s.resetAfterNewSession(777)
	if s.ServerSalt != 777 {
		t.Fatalf("expected ServerSalt updated to 777, got %d", s.ServerSalt)
	}
	if acks := s.drainAcks(); acks != nil {
		t.Fatalf("expected acks cleared by resetAfterNewSession, got %v", acks)
	}
}

func TestAllPendingReturnsSnapshotNotLiveMap(t *testing.T) {
	s := NewState(make([]byte, 256), 1, 1, 0, 1)
	s.addPending(1, &PendingRequest{})
	snap := s.allPending()
	s.addPending(2, &PendingRequest{})
	if len(snap) != 1 {
		t.Fatalf("expected snapshot to have 1 entry (not see the later add), got %d", len(snap))
	}
	if len(s.pending) != 2 {
		t.Fatalf("expected live map to have 2 entries, got %d", len(s.pending))
	}
}

func TestClearPendingEmptiesMap(t *testing.T) {
	s := NewState(make([]byte, 256), 1, 1, 0, 1)
	s.addPending(1, &PendingRequest{})
	s.clearPending()
	if len(s.pending) != 0 {
		t.Fatalf("expected pending map cleared, got %d entries", len(s.pending))
	}
}

// Package session implements the per-DC session engine (component C,
// spec.md §4.3): msg-id/seq-no allocation, MTProto v2 encryption, container
// and gzip wrapping, inbound dispatch, acks, and the ping/pong keepalive.
package session

import (
	"sync"
	"time"

	"github.com/gomtproto/mtprotocore/internal/tl"
)

// State mirrors spec.md §3's SessionState: everything the engine needs to
// survive a reconnect, kept behind one mutex since both the send and the
// receive goroutines touch it.
type State struct {
	mu sync.Mutex

	AuthKey      []byte
	AuthKeyID    int64
	SessionID    int64
	TimeOffset   int32
	LastMsgID    int64
	SeqNo        int32
	ServerSalt   int64
	Unauthorized bool

	inbound *RingSet
	pending map[int64]*PendingRequest
	acks    map[int64]struct{}
}

// NewState builds a fresh session state for a just-completed handshake (or
// a freshly loaded persisted one). SessionID is chosen by the caller; the
// router picks a fresh random one each time it opens an engine, and
// new_session_created does not change it.
func NewState(authKey []byte, authKeyID, serverSalt int64, timeOffset int32, sessionID int64) *State {
	return &State{
		AuthKey:    authKey,
		AuthKeyID:  authKeyID,
		ServerSalt: serverSalt,
		TimeOffset: timeOffset,
		SessionID:  sessionID,
		inbound:    NewRingSet(128),
		pending:    make(map[int64]*PendingRequest),
		acks:       make(map[int64]struct{}),
	}
}

// PendingRequest is an in-flight RPC awaiting a result (spec.md §3).
type PendingRequest struct {
	Body           tl.Object
	SubmittedAt    time.Time
	Response       chan Response
	Retries        uint8
	ContentRelated bool
	Acknowledged   bool
}

// Response is delivered to a PendingRequest's Response channel exactly once.
type Response struct {
	Obj tl.Object
	Err error
}

func (s *State) lock()   { s.mu.Lock() }
func (s *State) unlock() { s.mu.Unlock() }

// nextSeqNo implements spec.md §4.3's seq-no assignment: content-related
// messages consume and increment the counter; everything else reads it
// without advancing.
func (s *State) nextSeqNo(contentRelated bool) int32 {
	if contentRelated {
		n := s.SeqNo
		s.SeqNo++
		return n*2 + 1
	}
	return s.SeqNo * 2
}

func (s *State) addPending(msgID int64, p *PendingRequest) {
	s.pending[msgID] = p
}

func (s *State) popPending(msgID int64) (*PendingRequest, bool) {
	p, ok := s.pending[msgID]
	if ok {
		delete(s.pending, msgID)
	}
	return p, ok
}

func (s *State) drainAcks() []int64 {
	if len(s.acks) == 0 {
		return nil
	}
	out := make([]int64, 0, len(s.acks))
	for id := range s.acks {
		out = append(out, id)
	}
	s.acks = make(map[int64]struct{})
	return out
}

func (s *State) addAck(msgID int64) {
	s.acks[msgID] = struct{}{}
}

// resetAfterNewSession clears per-session state on new_session_created,
// per spec.md §4.3 ("clear ack_buffer").
func (s *State) resetAfterNewSession(serverSalt int64) {
	s.ServerSalt = serverSalt
	s.acks = make(map[int64]struct{})
}

// allPending returns every currently outstanding request, e.g. to fail them
// all on a fatal disconnect or to requeue them after a bad_server_salt reset.
func (s *State) allPending() map[int64]*PendingRequest {
	out := make(map[int64]*PendingRequest, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

func (s *State) clearPending() {
	s.pending = make(map[int64]*PendingRequest)
}

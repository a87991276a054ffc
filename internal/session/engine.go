package session

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ansel1/merry/v2"

	"github.com/gomtproto/mtprotocore/internal/logging"
	"github.com/gomtproto/mtprotocore/internal/mtcrypto"
	"github.com/gomtproto/mtprotocore/internal/tl"
	"github.com/gomtproto/mtprotocore/internal/transport"
)

// Phase is the session's state machine position (spec.md §4.3 "State
// machine").
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Handshaking
	Authorized
	Unauthorized
	Closed
)

// Decoder lets the engine hand inbound content-related objects to whatever
// schema the caller registered (the session package itself only knows the
// envelope-level constructors in the tl package).
type Decoder = tl.Decoder

const (
	defaultGzipThreshold = 16 * 1024
	pingInterval         = 60 * time.Second
	pingDisconnect       = 75 * time.Second
	missedPingMax        = 2
	minPadding           = 12
	staleWarnAfter       = 5 * time.Second
)

// Engine drives one DC's session: outbound send, inbound dispatch, acks,
// and keepalive, over an already-framed and already-authorized transport.Conn.
type Engine struct {
	conn    transport.Conn
	decoder Decoder
	log     logging.Logger

	gzipThreshold int

	state *State

	mu    sync.Mutex
	phase Phase

	updates    chan tl.Object
	newSession chan tl.Object
	closed     chan struct{}
	closeOnce  sync.Once

	// reconnect fires at most once, when the engine tears itself down after
	// an unexpected transport or protocol error instead of an explicit
	// Close (spec.md §7: "TransportError ... Reconnect under
	// connection_retry"). Pending requests are left in state.pending for
	// the owner to collect with TakePending and resend on a replacement
	// engine, rather than being failed outright the way Close does.
	reconnect chan error

	lastSend     time.Time
	pendingPings map[int64]time.Time
	missedPings  int

	// DisableAcks skips piggy-backing MsgsAck onto outbound containers,
	// leaving inbound ids in ack_buffer where they can be observed directly.
	DisableAcks bool
}

// NewEngine wraps a connected, authorized transport.Conn with a session
// state and starts its read/ping loops. gzipThreshold <= 0 selects
// defaultGzipThreshold, the way Config.withDefaults does for the router's
// own GzipThreshold field.
func NewEngine(conn transport.Conn, state *State, decoder Decoder, log logging.Logger, gzipThreshold int) *Engine {
	if gzipThreshold <= 0 {
		gzipThreshold = defaultGzipThreshold
	}
	e := &Engine{
		conn:          conn,
		decoder:       decoder,
		log:           log,
		gzipThreshold: gzipThreshold,
		state:         state,
		phase:         Authorized,
		updates:       make(chan tl.Object, 64),
		newSession:    make(chan tl.Object, 1),
		closed:        make(chan struct{}),
		reconnect:     make(chan error, 1),
		pendingPings:  make(map[int64]time.Time),
	}
	go e.readLoop()
	go e.pingLoop()
	go e.staleRoutine()
	return e
}

// staleRoutine periodically scans pending for requests that have gone
// unanswered longer than staleWarnAfter and logs a warning, the way the
// teacher's debugRoutine watches msgsByID.
func (e *Engine) staleRoutine() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.closed:
			return
		case now := <-ticker.C:
			e.state.lock()
			count := 0
			for id, p := range e.state.pending {
				if delta := now.Sub(p.SubmittedAt); delta > staleWarnAfter {
					e.log.Warnf("pending: #%d is here for %s", id, delta.Round(time.Second))
				}
				count++
			}
			e.state.unlock()
			e.log.Debugf("pending: %d total", count)
		}
	}
}

func (e *Engine) Updates() <-chan tl.Object   { return e.updates }
func (e *Engine) NewSession() <-chan tl.Object { return e.newSession }

// Reconnect fires at most once with the error that broke the connection,
// for an owner that wants to redial and resend rather than treat the
// engine's death as terminal (spec.md §7's TransportError/ProtocolViolation
// reconnect policy). It never fires after an explicit Close.
func (e *Engine) Reconnect() <-chan error { return e.reconnect }

// TakePending atomically removes and returns every request still awaiting a
// result, so an owner that's about to discard this engine (after a
// reconnect-triggering failure) can resend them on its replacement instead
// of losing them (spec.md §7: "TransportError ... Reconnect under
// connection_retry"). The engine must not be used afterwards.
func (e *Engine) TakePending() map[int64]*PendingRequest {
	e.state.lock()
	defer e.state.unlock()
	out := e.state.allPending()
	e.state.clearPending()
	return out
}

// Requeue resubmits p.Body under a fresh msg_id on this engine, forwarding
// the eventual result to p's original Response channel. Exported so an
// owner resending requests collected via TakePending after a reconnect can
// reuse the same logic dispatch uses internally for bad_server_salt and
// bad_msg_notification recovery.
func (e *Engine) Requeue(p *PendingRequest) {
	e.requeue(p)
}

// MarkUnauthorized transitions the engine to Unauthorized without touching
// the connection, for a caller that has learned the auth key itself is no
// longer valid server-side (AUTH_KEY_UNREGISTERED, spec.md §4.3) and is
// about to discard the engine via Close. Close always wins the race to set
// the final Closed phase; this just makes the intermediate state observable.
func (e *Engine) MarkUnauthorized() {
	e.setPhase(Unauthorized)
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// Close tears down the connection and fails every outstanding request.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.setPhase(Closed)
		close(e.closed)
		err = e.conn.Close()
		e.state.lock()
		for id, p := range e.state.pending {
			p.Response <- Response{Err: ErrClosed}
			delete(e.state.pending, id)
		}
		e.state.unlock()
	})
	return err
}

// fail tears the connection down after an unexpected transport or protocol
// error (spec.md §7: "TransportError ... Reconnect under connection_retry",
// "ProtocolViolation ... Drop the connection ... reconnect"). Unlike Close,
// it moves the phase to Connecting rather than Closed and leaves pending
// requests untouched in state.pending for the owner to collect with
// TakePending — Close and fail share closeOnce, so whichever runs first
// wins and the other is a no-op.
func (e *Engine) fail(cause error) {
	e.closeOnce.Do(func() {
		e.setPhase(Connecting)
		close(e.closed)
		_ = e.conn.Close()
		select {
		case e.reconnect <- cause:
		default:
		}
	})
}

// Send submits obj, optionally waiting for its RpcResult. contentRelated
// follows spec.md §4.3: false only for acks/pings/containers/state
// requests, true for everything else.
func (e *Engine) Send(obj tl.Object, contentRelated, expectsReply bool) (<-chan Response, error) {
	if e.Phase() != Authorized {
		return nil, ErrClosed.Here()
	}

	e.state.lock()
	reqMsgID, envMsgID, envSeqNo, payload := e.buildMessageLocked(obj, contentRelated)

	var respCh chan Response
	if expectsReply {
		respCh = make(chan Response, 1)
		e.state.addPending(reqMsgID, &PendingRequest{
			Body:           obj,
			SubmittedAt:    time.Now(),
			Response:       respCh,
			ContentRelated: contentRelated,
		})
	}
	err := e.writeEncryptedLocked(envMsgID, envSeqNo, payload)
	e.state.unlock()

	if err != nil {
		if expectsReply {
			e.state.lock()
			e.state.popPending(reqMsgID)
			e.state.unlock()
		}
		return nil, merry.Wrap(err)
	}
	e.mu.Lock()
	e.lastSend = time.Now()
	e.mu.Unlock()
	return respCh, nil
}

// buildMessageLocked assigns ids, gzip-wraps large bodies, and — when there
// are pending acks to flush — wraps the result in an ack-carrying
// MsgContainer. It must be called with state.mu held. Returns the msg_id
// the caller's object itself was assigned (what RpcResult.ReqMsgID will
// reference) and the msg_id/seq_no/body of the envelope actually placed on
// the wire (identical to the former when no container is used).
func (e *Engine) buildMessageLocked(obj tl.Object, contentRelated bool) (reqMsgID, envMsgID int64, envSeqNo int32, body tl.Object) {
	now := time.Now()
	reqMsgID = e.state.nextMsgID(now)
	reqSeqNo := e.state.nextSeqNo(contentRelated)

	wrapped := e.maybeGzip(obj)

	if e.DisableAcks {
		return reqMsgID, reqMsgID, reqSeqNo, wrapped
	}
	acks := e.state.drainAcks()
	if len(acks) == 0 {
		return reqMsgID, reqMsgID, reqSeqNo, wrapped
	}

	ackMsgID := e.state.nextMsgID(time.Now())
	ackSeqNo := e.state.nextSeqNo(false)
	container := tl.MsgContainer{Items: []tl.Message{
		{MsgID: ackMsgID, SeqNo: ackSeqNo, Body: tl.MsgsAck{MsgIDs: acks}},
		{MsgID: reqMsgID, SeqNo: reqSeqNo, Body: wrapped},
	}}
	envMsgID = e.state.nextMsgID(time.Now())
	envSeqNo = e.state.nextSeqNo(false)
	return reqMsgID, envMsgID, envSeqNo, container
}

func (e *Engine) maybeGzip(obj tl.Object) tl.Object {
	buf := tl.NewEncodeBuf(256)
	buf.Object(obj)
	if len(buf.Bytes()) < e.gzipThreshold {
		return obj
	}
	return tl.GzipPacked{Obj: obj}
}

// writeEncryptedLocked builds the MTProto v2 plaintext envelope
// (server_salt, session_id, msg_id, seq_no, length, body, padding),
// encrypts it with AES-256-IGE keyed off the current auth key, and writes
// the resulting frame. Must be called with state.mu held.
func (e *Engine) writeEncryptedLocked(msgID int64, seqNo int32, body tl.Object) error {
	bodyBuf := tl.NewEncodeBuf(256)
	bodyBuf.Object(body)
	bodyBytes := bodyBuf.Bytes()

	plain := make([]byte, 32, 32+len(bodyBytes)+1024)
	binary.LittleEndian.PutUint64(plain[0:8], uint64(e.state.ServerSalt))
	binary.LittleEndian.PutUint64(plain[8:16], uint64(e.state.SessionID))
	binary.LittleEndian.PutUint64(plain[16:24], uint64(msgID))
	binary.LittleEndian.PutUint32(plain[24:28], uint32(seqNo))
	binary.LittleEndian.PutUint32(plain[28:32], uint32(len(bodyBytes)))
	plain = append(plain, bodyBytes...)

	pad := minPadding + (16-((len(plain)+minPadding)%16))%16
	padBytes := make([]byte, pad)
	if _, err := rand.Read(padBytes); err != nil {
		return merry.Wrap(err)
	}
	plain = append(plain, padBytes...)

	msgKey := mtcrypto.MsgKey(e.state.AuthKey, plain, mtcrypto.ClientToServer)
	key, iv := mtcrypto.DeriveAESKeyIV(e.state.AuthKey, msgKey, mtcrypto.ClientToServer)
	cipherText, err := mtcrypto.IGEEncrypt(key[:], iv[:], plain)
	if err != nil {
		return merry.Wrap(err)
	}

	frame := make([]byte, 24+len(cipherText))
	binary.LittleEndian.PutUint64(frame[0:8], uint64(e.state.AuthKeyID))
	copy(frame[8:24], msgKey[:])
	copy(frame[24:], cipherText)
	return merry.Wrap(e.conn.WriteFrame(frame))
}

// consecutive404Limit bounds how many back-to-back -404 (AuthKeyInvalid)
// transport errors the engine tolerates before giving up instead of looping
// forever on a dead key, ported from gogram's handle404Error.
const consecutive404Limit = 3

func (e *Engine) readLoop() {
	consecutive404 := 0
	for {
		frame, err := e.conn.ReadFrame()
		if err != nil {
			if te, ok := err.(*transport.TransportError); ok && te.Code == -404 {
				consecutive404++
				e.log.Warnf("session: transport -404 (%d/%d)", consecutive404, consecutive404Limit)
				if consecutive404 < consecutive404Limit {
					continue
				}
				// -404 persisting past tolerance means AuthKeyInvalid
				// (spec.md §4.1): the key itself is bad, so reconnecting
				// under it would just repeat the same failure. Terminal,
				// like AUTH_KEY_UNREGISTERED.
				if e.Phase() != Closed {
					e.log.Errorf("session: -404 persisted past tolerance, closing")
					e.Close()
				}
				return
			}
			// Any other read error is a plain TransportError (socket
			// closed, short error code) — spec.md §7 calls for a
			// reconnect under connection_retry, not a terminal close.
			if e.Phase() != Closed {
				e.log.Warnf("session: read error: %v, will reconnect", err)
				e.fail(err)
			}
			return
		}
		consecutive404 = 0
		if err := e.handleFrame(frame); err != nil {
			if merry.Is(err, ErrAuthKeyMismatch) {
				// spec.md §3's auth_key_id invariant calls for an
				// unconditional drop, not a reconnect under the same key.
				e.log.Errorf("session: %v", err)
				e.Close()
				return
			}
			// Everything else handleFrame can return (bad msg-id, decrypt
			// failure, unknown container inner) is spec.md §7's
			// ProtocolViolation: drop the connection and reconnect.
			e.log.Warnf("session: %v, will reconnect", err)
			e.fail(err)
			return
		}
	}
}

func (e *Engine) handleFrame(frame []byte) error {
	if len(frame) < 24 {
		return merry.New("session: encrypted frame too short")
	}
	authKeyID := int64(binary.LittleEndian.Uint64(frame[0:8]))
	e.state.lock()
	if authKeyID != e.state.AuthKeyID {
		e.state.unlock()
		return ErrAuthKeyMismatch.Here()
	}
	var msgKey [16]byte
	copy(msgKey[:], frame[8:24])
	authKey := e.state.AuthKey
	e.state.unlock()

	key, iv := mtcrypto.DeriveAESKeyIV(authKey, msgKey, mtcrypto.ServerToClient)
	plain, err := mtcrypto.IGEDecrypt(key[:], iv[:], frame[24:])
	if err != nil {
		return merry.Wrap(err)
	}
	if len(plain) < 32 {
		return merry.New("session: decrypted message too short")
	}

	wantKey := mtcrypto.MsgKey(authKey, plain, mtcrypto.ServerToClient)
	if wantKey != msgKey {
		return merry.New("session: msg_key mismatch")
	}

	msgID := int64(binary.LittleEndian.Uint64(plain[16:24]))
	length := binary.LittleEndian.Uint32(plain[28:32])
	if int(length) > len(plain)-32 {
		return merry.New("session: message length out of bounds")
	}
	body := plain[32 : 32+length]

	now := time.Now()
	e.state.lock()
	verdict := e.state.validateInboundMsgID(msgID, now)
	switch verdict {
	case msgIDEven:
		e.state.unlock()
		return ErrEvenMsgID.Here()
	case msgIDBadTime:
		e.state.unlock()
		return ErrBadMsgTime.Here()
	case msgIDDuplicate:
		e.state.unlock()
		return nil
	}
	e.state.inbound.Add(msgID)
	e.state.unlock()

	d := tl.NewDecodeBuf(body)
	obj, err := d.Object(e.decoder)
	if err != nil {
		return merry.Wrap(err)
	}
	return e.dispatch(msgID, obj)
}

// dispatch implements spec.md §4.3's inbound dispatch table.
func (e *Engine) dispatch(msgID int64, obj tl.Object) error {
	switch v := obj.(type) {
	case tl.MsgContainer:
		for _, item := range v.Items {
			if err := e.dispatch(item.MsgID, item.Body); err != nil {
				return err
			}
		}
		return nil
	case tl.RpcResult:
		e.completePending(v.ReqMsgID, v.Obj)
		e.ackContentRelated(msgID)
		return nil
	case tl.MsgCopy:
		return e.dispatch(v.OrigMsgID, v.OrigBody)
	case tl.BadServerSalt:
		e.state.lock()
		e.state.ServerSalt = v.NewServerSalt
		p, ok := e.state.popPending(v.BadMsgID)
		e.state.unlock()
		if ok {
			e.requeue(p)
		}
		return nil
	case tl.BadMsgNotification:
		return e.handleBadMsgNotification(v)
	case tl.NewSessionCreated:
		e.state.lock()
		e.state.resetAfterNewSession(v.ServerSalt)
		e.state.unlock()
		select {
		case e.newSession <- v:
		default:
		}
		return nil
	case tl.MsgsAck:
		e.state.lock()
		for _, id := range v.MsgIDs {
			if p, ok := e.state.pending[id]; ok {
				p.Acknowledged = true
			}
		}
		e.state.unlock()
		return nil
	case tl.Pong:
		e.handlePong(v)
		return nil
	case tl.Ping:
		_, err := e.Send(tl.Pong{MsgID: msgID, PingID: v.PingID}, false, false)
		return err
	default:
		e.ackContentRelated(msgID)
		select {
		case e.updates <- obj:
		default:
			e.log.Warnf("session: updates channel full, dropping message")
		}
		return nil
	}
}

func (e *Engine) ackContentRelated(msgID int64) {
	e.state.lock()
	e.state.addAck(msgID)
	e.state.unlock()
}

func (e *Engine) completePending(reqMsgID int64, obj tl.Object) {
	e.state.lock()
	p, ok := e.state.popPending(reqMsgID)
	e.state.unlock()
	if !ok {
		return
	}
	if rpcErr, ok := obj.(tl.RpcError); ok {
		p.Response <- Response{Err: rpcErr}
		return
	}
	p.Response <- Response{Obj: obj}
}

// requeue resubmits a dropped pending request under a fresh msg_id, wiring
// its result back to the original caller's Response channel.
func (e *Engine) requeue(p *PendingRequest) {
	respCh, err := e.Send(p.Body, p.ContentRelated, true)
	if err != nil {
		p.Response <- Response{Err: err}
		return
	}
	go func() {
		p.Response <- <-respCh
	}()
}

// handleBadMsgNotification implements spec.md §4.3's error-code table.
func (e *Engine) handleBadMsgNotification(v tl.BadMsgNotification) error {
	switch v.ErrorCode {
	case 16, 17:
		e.state.lock()
		e.state.TimeOffset = int32(v.BadMsgID>>32) - int32(time.Now().Unix())
		e.state.LastMsgID = 0
		p, ok := e.state.popPending(v.BadMsgID)
		e.state.unlock()
		if ok {
			e.requeue(p)
		}
		return nil
	case 32, 33:
		e.state.lock()
		e.state.SeqNo = 0
		p, ok := e.state.popPending(v.BadMsgID)
		e.state.unlock()
		if ok {
			e.requeue(p)
		}
		return nil
	case 48:
		e.state.lock()
		p, ok := e.state.popPending(v.BadMsgID)
		e.state.unlock()
		if ok {
			e.requeue(p)
		}
		return nil
	default:
		e.state.lock()
		p, ok := e.state.popPending(v.BadMsgID)
		e.state.unlock()
		if ok {
			p.Response <- Response{Err: merry.Prependf(ErrProtocolFatal, "bad_msg_notification code=%d", v.ErrorCode)}
		}
		return nil
	}
}

func (e *Engine) handlePong(v tl.Pong) {
	e.mu.Lock()
	delete(e.pendingPings, v.PingID)
	e.missedPings = 0
	e.mu.Unlock()

	e.state.lock()
	p, ok := e.state.popPending(v.MsgID)
	e.state.unlock()
	if ok {
		p.Response <- Response{Obj: v}
	}
}

// pingLoop implements spec.md §4.3's keepalive: a PingDelayDisconnect every
// 60s of outbound idleness, tearing the connection down after two
// consecutive unanswered pings. Both teardown paths go through fail rather
// than Close — an unanswered ping means the connection is presumed dead, not
// that the session itself is done, so the owner reconnects and resends
// (spec.md §8 Testable Property S4: "Authorized → Connecting").
func (e *Engine) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.mu.Lock()
			idle := time.Since(e.lastSend) >= pingInterval
			e.mu.Unlock()
			if !idle {
				continue
			}

			e.mu.Lock()
			if e.missedPings >= missedPingMax {
				missed := e.missedPings
				e.mu.Unlock()
				e.log.Warnf("session: %d consecutive pings unanswered, reconnecting", missed)
				e.fail(merry.Errorf("session: %d consecutive pings unanswered", missed))
				return
			}
			e.missedPings++
			e.mu.Unlock()

			pingID := randInt64()
			e.mu.Lock()
			e.pendingPings[pingID] = time.Now()
			e.mu.Unlock()
			if _, err := e.Send(tl.PingDelayDisconnect{PingID: pingID, DisconnectDelay: int32(pingDisconnect / time.Second)}, false, false); err != nil {
				e.log.Errorf("session: ping send failed: %v, will reconnect", err)
				e.fail(err)
				return
			}
		}
	}
}

func randInt64() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}

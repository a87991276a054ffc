package session

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gomtproto/mtprotocore/internal/logging"
	"github.com/gomtproto/mtprotocore/internal/mtcrypto"
	"github.com/gomtproto/mtprotocore/internal/tl"
	"github.com/gomtproto/mtprotocore/internal/transport"
)

// stubDecoder stands in for a caller's generated schema: every frame these
// tests construct only ever uses envelope-owned constructors, so a real
// dispatch through it would be a test bug.
type stubDecoder struct{}

func (stubDecoder) DecodeByCRC(crc uint32, b *tl.DecodeBuf) (tl.Object, error) {
	panic("unexpected DecodeByCRC call in a test that only uses envelope-owned types")
}

type readItem struct {
	frame []byte
	err   error
}

// scriptedConn is a transport.Conn whose inbound stream is entirely
// test-controlled and whose outbound frames are captured for inspection.
type scriptedConn struct {
	reads  chan readItem
	writes chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		reads:  make(chan readItem, 32),
		writes: make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (c *scriptedConn) WriteFrame(f transport.Frame) error {
	select {
	case c.writes <- append([]byte(nil), f...):
		return nil
	case <-c.closed:
		return errors.New("scriptedConn: closed")
	}
}

func (c *scriptedConn) ReadFrame() (transport.Frame, error) {
	select {
	case item := <-c.reads:
		if item.err != nil {
			return nil, item.err
		}
		return transport.Frame(item.frame), nil
	case <-c.closed:
		return nil, errors.New("scriptedConn: closed")
	}
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptedConn) push(frame []byte) { c.reads <- readItem{frame: frame} }
func (c *scriptedConn) pushErr(err error)  { c.reads <- readItem{err: err} }

func validOddMsgID(t *testing.T, offset int64) int64 {
	t.Helper()
	id := (time.Now().Unix() << 32) | (1 + offset*4)
	if id%2 == 0 {
		t.Fatalf("test helper produced an even msg_id: %d", id)
	}
	return id
}

// encryptServerFrame builds a wire frame the way a real DC would when
// sending to this client: MTProto v2 plaintext envelope, AES-256-IGE under
// the shared auth key with the server->client key/iv derivation.
func encryptServerFrame(t *testing.T, authKey []byte, authKeyID, serverSalt, sessionID, msgID int64, seqNo int32, body tl.Object) []byte {
	t.Helper()
	bodyBuf := tl.NewEncodeBuf(128)
	bodyBuf.Object(body)
	bodyBytes := bodyBuf.Bytes()

	plain := make([]byte, 32, 32+len(bodyBytes)+32)
	binary.LittleEndian.PutUint64(plain[0:8], uint64(serverSalt))
	binary.LittleEndian.PutUint64(plain[8:16], uint64(sessionID))
	binary.LittleEndian.PutUint64(plain[16:24], uint64(msgID))
	binary.LittleEndian.PutUint32(plain[24:28], uint32(seqNo))
	binary.LittleEndian.PutUint32(plain[28:32], uint32(len(bodyBytes)))
	plain = append(plain, bodyBytes...)

	pad := minPadding + (16-((len(plain)+minPadding)%16))%16
	plain = append(plain, make([]byte, pad)...)

	msgKey := mtcrypto.MsgKey(authKey, plain, mtcrypto.ServerToClient)
	key, iv := mtcrypto.DeriveAESKeyIV(authKey, msgKey, mtcrypto.ServerToClient)
	cipherText, err := mtcrypto.IGEEncrypt(key[:], iv[:], plain)
	if err != nil {
		t.Fatalf("IGEEncrypt: %v", err)
	}

	frame := make([]byte, 24+len(cipherText))
	binary.LittleEndian.PutUint64(frame[0:8], uint64(authKeyID))
	copy(frame[8:24], msgKey[:])
	copy(frame[24:], cipherText)
	return frame
}

// decodeOutboundFrame inverts writeEncryptedLocked to inspect what the
// engine actually put on the wire.
func decodeOutboundFrame(t *testing.T, authKey []byte, frame []byte, dec tl.Decoder) (msgID int64, seqNo int32, obj tl.Object) {
	t.Helper()
	if len(frame) < 24 {
		t.Fatalf("frame too short: %d bytes", len(frame))
	}
	var msgKey [16]byte
	copy(msgKey[:], frame[8:24])
	key, iv := mtcrypto.DeriveAESKeyIV(authKey, msgKey, mtcrypto.ClientToServer)
	plain, err := mtcrypto.IGEDecrypt(key[:], iv[:], frame[24:])
	if err != nil {
		t.Fatalf("IGEDecrypt: %v", err)
	}
	msgID = int64(binary.LittleEndian.Uint64(plain[16:24]))
	seqNo = int32(binary.LittleEndian.Uint32(plain[24:28]))
	length := binary.LittleEndian.Uint32(plain[28:32])
	body := plain[32 : 32+length]
	d := tl.NewDecodeBuf(body)
	obj, err = d.Object(dec)
	if err != nil {
		t.Fatalf("decode outbound body: %v", err)
	}
	return msgID, seqNo, obj
}

func newTestEngine(t *testing.T, authKey []byte, authKeyID int64) (*Engine, *scriptedConn) {
	t.Helper()
	state := NewState(authKey, authKeyID, 111, 0, 222)
	conn := newScriptedConn()
	eng := NewEngine(conn, state, stubDecoder{}, logging.Logger{}, 0)
	t.Cleanup(func() { eng.Close() })
	return eng, conn
}

func recvWithTimeout(t *testing.T, ch <-chan []byte, d time.Duration) []byte {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(d):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

func TestEngineAckCoalescesOntoNextOutbound(t *testing.T) {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(i)
	}
	const authKeyID = 555
	eng, conn := newTestEngine(t, authKey, authKeyID)

	inboundID := validOddMsgID(t, 0)
	conn.push(encryptServerFrame(t, authKey, authKeyID, 111, 222, inboundID, 1, tl.MsgsStateInfo{ReqMsgID: 1, Info: []byte("x")}))

	select {
	case <-eng.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the inbound message to surface on Updates()")
	}

	if _, err := eng.Send(tl.Ping{PingID: 1}, false, false); err != nil {
		t.Fatalf("Send: %v", err)
	}

	frame := recvWithTimeout(t, conn.writes, 2*time.Second)
	_, _, obj := decodeOutboundFrame(t, authKey, frame, stubDecoder{})
	container, ok := obj.(tl.MsgContainer)
	if !ok {
		t.Fatalf("expected the ack to be coalesced into a MsgContainer, got %T", obj)
	}
	if len(container.Items) != 2 {
		t.Fatalf("expected 2 items (ack + ping), got %d", len(container.Items))
	}
	ack, ok := container.Items[0].Body.(tl.MsgsAck)
	if !ok {
		t.Fatalf("expected first item to be MsgsAck, got %T", container.Items[0].Body)
	}
	if len(ack.MsgIDs) != 1 || ack.MsgIDs[0] != inboundID {
		t.Fatalf("expected ack to reference %d, got %v", inboundID, ack.MsgIDs)
	}
	if _, ok := container.Items[1].Body.(tl.Ping); !ok {
		t.Fatalf("expected second item to be the Ping, got %T", container.Items[1].Body)
	}
}

func TestEngineDispatchesGzippedContainerAndRepliesToInnerPing(t *testing.T) {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(255 - i)
	}
	const authKeyID = 7
	_, conn := newTestEngine(t, authKey, authKeyID)

	innerID := validOddMsgID(t, 1)
	outerID := validOddMsgID(t, 2)
	container := tl.MsgContainer{Items: []tl.Message{
		{MsgID: innerID, SeqNo: 1, Body: tl.Ping{PingID: 42}},
	}}
	conn.push(encryptServerFrame(t, authKey, authKeyID, 111, 222, outerID, 1, tl.GzipPacked{Obj: container}))

	frame := recvWithTimeout(t, conn.writes, 2*time.Second)
	_, _, obj := decodeOutboundFrame(t, authKey, frame, stubDecoder{})
	pong, ok := obj.(tl.Pong)
	if !ok {
		t.Fatalf("expected a Pong reply, got %T", obj)
	}
	if pong.MsgID != innerID || pong.PingID != 42 {
		t.Fatalf("unexpected Pong: %#v", pong)
	}
}

func TestEngineMsgCopyRecursesToOriginalPing(t *testing.T) {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(i * 3)
	}
	const authKeyID = 99
	_, conn := newTestEngine(t, authKey, authKeyID)

	origID := validOddMsgID(t, 0)
	envID := validOddMsgID(t, 1)
	body := tl.MsgCopy{OrigMsgID: origID, OrigSeqNo: 1, OrigBody: tl.Ping{PingID: 7}}
	conn.push(encryptServerFrame(t, authKey, authKeyID, 111, 222, envID, 1, body))

	frame := recvWithTimeout(t, conn.writes, 2*time.Second)
	_, _, obj := decodeOutboundFrame(t, authKey, frame, stubDecoder{})
	pong, ok := obj.(tl.Pong)
	if !ok {
		t.Fatalf("expected a Pong reply to the copied Ping, got %T", obj)
	}
	if pong.MsgID != origID || pong.PingID != 7 {
		t.Fatalf("expected the reply to reference the original msg_id %d, got %#v", origID, pong)
	}
}

func TestEngineRejectsDuplicateInboundMsgID(t *testing.T) {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(i + 1)
	}
	const authKeyID = 11
	eng, conn := newTestEngine(t, authKey, authKeyID)

	id := validOddMsgID(t, 0)
	frame := encryptServerFrame(t, authKey, authKeyID, 111, 222, id, 1, tl.MsgsStateInfo{ReqMsgID: 1, Info: []byte("x")})

	conn.push(frame)
	select {
	case <-eng.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first delivery")
	}

	conn.push(frame) // identical msg_id: must be silently dropped
	select {
	case <-eng.Updates():
		t.Fatal("expected the duplicate msg_id to be rejected, not re-dispatched")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestEngineClosesOnAuthKeyIDMismatch(t *testing.T) {
	authKey := make([]byte, 256)
	const authKeyID = 321
	eng, conn := newTestEngine(t, authKey, authKeyID)

	wrongID := validOddMsgID(t, 0)
	conn.push(encryptServerFrame(t, authKey, authKeyID+1, 111, 222, wrongID, 1, tl.Ping{PingID: 1}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eng.Phase() == Closed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the engine to close after an auth_key_id mismatch")
}

func TestEngineTolerates404UpToLimitThenCloses(t *testing.T) {
	authKey := make([]byte, 256)
	const authKeyID = 1
	eng, conn := newTestEngine(t, authKey, authKeyID)

	for i := 0; i < consecutive404Limit-1; i++ {
		conn.pushErr(&transport.TransportError{Code: -404})
	}
	time.Sleep(50 * time.Millisecond)
	if eng.Phase() == Closed {
		t.Fatal("engine closed before reaching the -404 tolerance limit")
	}

	conn.pushErr(&transport.TransportError{Code: -404})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eng.Phase() == Closed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the engine to close after consecutive404Limit consecutive -404 errors")
}

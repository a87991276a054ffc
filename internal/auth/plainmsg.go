package auth

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gomtproto/mtprotocore/internal/transport"
)

// plainMsgIDs generates strictly increasing message ids for the unencrypted
// handshake messages (spec.md §4.2: "msg_id = a server-acceptable
// timestamp, no session"), the same high-level shape as session message ids
// without the seq-no/session machinery that only applies once encrypted.
type plainMsgIDs struct {
	last atomic.Int64
}

func (g *plainMsgIDs) next() int64 {
	now := time.Now()
	candidate := (now.Unix() << 32) | (int64(now.Nanosecond()/1e6%1000) << 20) | (rand.Int63n(1<<18) << 2)
	for {
		last := g.last.Load()
		if candidate <= last {
			candidate = last + 4
		}
		if g.last.CompareAndSwap(last, candidate) {
			return candidate
		}
	}
}

func sendPlain(conn transport.Conn, ids *plainMsgIDs, body []byte) error {
	msgID := ids.next()
	frame := make([]byte, 20+len(body))
	// auth_key_id = 0
	binary.LittleEndian.PutUint64(frame[8:16], uint64(msgID))
	binary.LittleEndian.PutUint32(frame[16:20], uint32(len(body)))
	copy(frame[20:], body)
	return conn.WriteFrame(frame)
}

func recvPlain(conn transport.Conn) ([]byte, error) {
	frame, err := conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	if len(frame) < 20 {
		return nil, fmt.Errorf("auth: plain message too short (%d bytes)", len(frame))
	}
	authKeyID := binary.LittleEndian.Uint64(frame[0:8])
	if authKeyID != 0 {
		return nil, fmt.Errorf("auth: expected unencrypted message, got auth_key_id=%d", authKeyID)
	}
	msgLen := binary.LittleEndian.Uint32(frame[16:20])
	if int(msgLen) != len(frame)-20 {
		return nil, fmt.Errorf("auth: plain message length mismatch: header says %d, have %d", msgLen, len(frame)-20)
	}
	return frame[20:], nil
}

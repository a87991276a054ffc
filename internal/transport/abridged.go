package transport

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/ansel1/merry/v2"
)

// abridgedConn implements the plain (unobfuscated) abridged transport: a
// single 0xef marker byte, then frames prefixed either by one byte holding
// length/4 (when < 127) or 0x7f followed by a 3-byte little-endian
// length/4, per SPEC_FULL.md §4.1.
type abridgedConn struct {
	conn net.Conn
}

func newAbridgedConn(conn net.Conn) (Conn, error) {
	if _, err := conn.Write([]byte{0xef}); err != nil {
		conn.Close()
		return nil, merry.Wrap(err)
	}
	return &abridgedConn{conn: conn}, nil
}

func (c *abridgedConn) WriteFrame(f Frame) error {
	if len(f)%4 != 0 {
		return merry.New("transport: abridged frame length must be a multiple of 4")
	}
	words := len(f) / 4
	var out []byte
	if words < 0x7f {
		out = append(out, byte(words))
	} else {
		out = append(out, 0x7f, byte(words), byte(words>>8), byte(words>>16))
	}
	out = append(out, f...)
	_, err := c.conn.Write(out)
	return merry.Wrap(err)
}

func (c *abridgedConn) ReadFrame() (Frame, error) {
	var first [1]byte
	if _, err := io.ReadFull(c.conn, first[:]); err != nil {
		return nil, merry.Wrap(err)
	}

	var words int
	if first[0] < 0x7f {
		words = int(first[0])
	} else {
		var rest [3]byte
		if _, err := io.ReadFull(c.conn, rest[:]); err != nil {
			return nil, merry.Wrap(err)
		}
		words = int(rest[0]) | int(rest[1])<<8 | int(rest[2])<<16
	}

	n := words * 4
	if n < 16 {
		// Short frames this small only occur for the transport-level error
		// codes (spec.md §4.1); read exactly the advertised bytes and
		// interpret them as a little-endian int32 error code when they are.
		body := make([]byte, n)
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return nil, merry.Wrap(err)
		}
		if n == 4 {
			code := int32(binary.LittleEndian.Uint32(body))
			if code < 0 {
				return nil, &TransportError{Code: code}
			}
		}
		return Frame(body), nil
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return nil, merry.Wrap(err)
	}
	return Frame(body), nil
}

func (c *abridgedConn) Close() error { return c.conn.Close() }

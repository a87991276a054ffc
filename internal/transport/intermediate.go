package transport

import (
	"crypto/cipher"
	"encoding/binary"
	"io"
	"net"

	"github.com/ansel1/merry/v2"
	"github.com/gomtproto/mtprotocore/internal/mtcrypto"
)

var intermediateProtocolTag = [4]byte{0xee, 0xee, 0xee, 0xee}

// intermediateConn implements the obfuscated intermediate transport: a
// 64-byte obfuscation handshake (spec.md §4.1) followed by 4-byte
// little-endian length-prefixed frames, the whole stream encrypted with
// AES-256-CTR keyed from the handshake header.
type intermediateConn struct {
	conn net.Conn
	enc  cipher.Stream
	dec  cipher.Stream
}

func newIntermediateConn(conn net.Conn) (Conn, error) {
	hdr, err := mtcrypto.GenerateObfuscationHeader(intermediateProtocolTag)
	if err != nil {
		conn.Close()
		return nil, merry.Wrap(err)
	}
	if _, err := conn.Write(hdr.Wire[:]); err != nil {
		conn.Close()
		return nil, merry.Wrap(err)
	}
	return &intermediateConn{conn: conn, enc: hdr.Encrypt, dec: hdr.Decrypt}, nil
}

func (c *intermediateConn) WriteFrame(f Frame) error {
	if len(f)%4 != 0 {
		padded := make([]byte, (len(f)+3)&^3)
		copy(padded, f)
		f = padded
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f)))

	out := make([]byte, 4+len(f))
	copy(out, lenBuf[:])
	copy(out[4:], f)

	enc := make([]byte, len(out))
	c.enc.XORKeyStream(enc, out)
	_, err := c.conn.Write(enc)
	return merry.Wrap(err)
}

func (c *intermediateConn) ReadFrame() (Frame, error) {
	var lenBuf [4]byte
	if err := c.readDecrypted(lenBuf[:]); err != nil {
		return nil, err
	}
	n := int32(binary.LittleEndian.Uint32(lenBuf[:]))
	if n < 0 {
		return nil, &TransportError{Code: n}
	}
	if n == 0 {
		return Frame{}, nil
	}
	body := make([]byte, n)
	if err := c.readDecrypted(body); err != nil {
		return nil, err
	}
	return Frame(body), nil
}

func (c *intermediateConn) readDecrypted(out []byte) error {
	enc := make([]byte, len(out))
	if _, err := io.ReadFull(c.conn, enc); err != nil {
		return merry.Wrap(err)
	}
	c.dec.XORKeyStream(out, enc)
	return nil
}

func (c *intermediateConn) Close() error { return c.conn.Close() }

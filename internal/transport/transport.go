// Package transport implements the MTProto transport framer (component A,
// spec.md §4.1): length-prefix framing over a TCP byte stream, with an
// optional obfuscation handshake, and a TransportError for the short
// negative-length error codes the wire protocol uses in place of a framed
// payload.
package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/ansel1/merry/v2"
	"golang.org/x/net/proxy"
)

// Variant selects which MTProto transport framing to speak.
type Variant int

const (
	// Intermediate is the obfuscated, 4-byte-length-prefixed variant
	// required by spec.md §4.1.
	Intermediate Variant = iota
	// Abridged is the plain, single-byte-marker variant (no obfuscation),
	// supplemented per SPEC_FULL.md §4.1.
	Abridged
)

// Frame is an opaque MTProto payload: either a plain handshake message or
// an encrypted session message. The transport framer never looks inside it.
type Frame []byte

// Conn is a framed MTProto connection: callers send and receive whole
// frames, never raw bytes.
type Conn interface {
	WriteFrame(f Frame) error
	ReadFrame() (Frame, error)
	Close() error
}

// TransportError is surfaced when the peer responds with a short negative
// 32-bit payload instead of a framed message (spec.md §4.1), e.g. -404 for
// AuthKeyInvalid.
type TransportError struct {
	Code int32
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: error code %d", e.Code)
}

// DialOptions configures how the TCP connection underlying a Conn is
// established.
type DialOptions struct {
	// Proxy, if set, routes the TCP dial through a SOCKS5 proxy
	// (SPEC_FULL.md §4.1).
	Proxy proxy.Dialer
}

// Dial opens a TCP (optionally SOCKS5-proxied) connection to addr and wraps
// it with the requested transport variant's framing.
func Dial(ctx context.Context, addr string, variant Variant, opts DialOptions) (Conn, error) {
	rawConn, err := dialRaw(ctx, addr, opts)
	if err != nil {
		return nil, merry.Wrap(err)
	}
	switch variant {
	case Intermediate:
		return newIntermediateConn(rawConn)
	case Abridged:
		return newAbridgedConn(rawConn)
	default:
		rawConn.Close()
		return nil, merry.Errorf("transport: unknown variant %d", variant)
	}
}

func dialRaw(ctx context.Context, addr string, opts DialOptions) (net.Conn, error) {
	if opts.Proxy != nil {
		if ctxDialer, ok := opts.Proxy.(proxy.ContextDialer); ok {
			return ctxDialer.DialContext(ctx, "tcp", addr)
		}
		return opts.Proxy.Dial("tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// IsClosedConnErr reports whether err is the "use of closed network
// connection" error net returns after Close, which call sites treat as a
// clean shutdown rather than a failure worth logging.
func IsClosedConnErr(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(*net.OpError); ok {
		return ne.Err.Error() == "use of closed network connection"
	}
	return false
}

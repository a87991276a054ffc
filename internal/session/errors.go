package session

import "github.com/ansel1/merry/v2"

var (
	// ErrAuthKeyMismatch is raised when an inbound message's auth_key_id
	// doesn't match the session's current key (spec.md §3's invariant);
	// the caller must drop the connection.
	ErrAuthKeyMismatch = merry.New("session: auth_key_id mismatch")

	// ErrEvenMsgID and ErrBadMsgTime are both spec.md §3 "likely MITM or
	// clock skew" cases that call for dropping the connection outright.
	ErrEvenMsgID  = merry.New("session: inbound msg_id is even")
	ErrBadMsgTime = merry.New("session: inbound msg_id outside the acceptable time window")

	// ErrProtocolFatal wraps bad_msg_notification codes this engine has no
	// recovery for (spec.md §4.3's "others ⇒ drop the referenced request
	// with a protocol error").
	ErrProtocolFatal = merry.New("session: unrecoverable bad_msg_notification")

	// ErrClosed is returned by Send/inbound processing once the engine has
	// torn the connection down.
	ErrClosed = merry.New("session: closed")
)

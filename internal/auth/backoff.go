package auth

import "time"

// BackoffSpec configures the retry delay between handshake attempts
// (spec.md §4.2's "caller-supplied backoff"). A zero value behaves as
// DefaultBackoff.
type BackoffSpec struct {
	Delay      time.Duration
	MaxRetries int // 0 means unbounded
}

// DefaultBackoff is spec.md §4.2's documented default: fixed 3s, max 5
// attempts.
var DefaultBackoff = BackoffSpec{Delay: 3 * time.Second, MaxRetries: 5}

func (b BackoffSpec) orDefault() BackoffSpec {
	if b.Delay == 0 && b.MaxRetries == 0 {
		return DefaultBackoff
	}
	return b
}

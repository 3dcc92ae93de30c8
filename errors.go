package nebulauth

import (
	"errors"
	"fmt"
)

// Kind classifies client failures so callers can branch on the failure class
// instead of matching error strings.
type Kind int

const (
	// KindUnknown is the zero value and never produced by the client.
	KindUnknown Kind = iota
	// KindInvalidInput marks a malformed or missing required field detected
	// before any network activity.
	KindInvalidInput
	// KindSigningUnavailable marks a call path that requires signing while no
	// signing secret is configured.
	KindSigningUnavailable
	// KindReplayProtectionViolation marks a strict-mode nonce reuse or a
	// timestamp outside the clock skew tolerance.
	KindReplayProtectionViolation
	// KindTransport marks a network, timeout, or TLS failure reported by the
	// transport collaborator.
	KindTransport
	// KindServer marks a non-2xx response; the parsed payload rides along on
	// the error.
	KindServer
	// KindDeserialization marks a response body that did not match the
	// expected shape.
	KindDeserialization
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindSigningUnavailable:
		return "signing unavailable"
	case KindReplayProtectionViolation:
		return "replay protection violation"
	case KindTransport:
		return "transport error"
	case KindServer:
		return "server error"
	case KindDeserialization:
		return "deserialization error"
	default:
		return "unknown error"
	}
}

// Error is the typed failure surfaced by every client operation. The message
// carries enough detail to diagnose the failure without ever including the
// bearer token or signing secret.
type Error struct {
	Kind    Kind
	Message string
	// Response holds the parsed server payload for KindServer failures.
	Response *Response
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) a client Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

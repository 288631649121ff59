package mesh

import "fmt"

// ErrorKind classifies an error per the taxonomy in the error-handling design:
// transport, auth, protocol, rate-limited, permission, not-found, capacity,
// internal. No exceptions leak across package boundaries — every public
// operation returns an explicit success/failure indicator carrying an
// ErrorKind.
type ErrorKind int

const (
	// KindTransport covers socket/stream failure, malformed handshake, or
	// a frame protocol violation. Recovery: tear down, reconnect with backoff.
	KindTransport ErrorKind = iota
	// KindAuthFailure covers a rejected token or an authentication timeout.
	// (KindAuth is the "auth" message kind in envelope.go.)
	KindAuthFailure
	// KindProtocol covers a valid frame carrying a malformed envelope or an
	// unknown type/version.
	KindProtocol
	// KindRateLimited covers a caller API call rejected by the rate limiter.
	KindRateLimited
	// KindPermission covers a caller lacking the required capability.
	KindPermission
	// KindNotFound covers an unknown target user, MUD, or channel.
	KindNotFound
	// KindCapacity covers a frame or message exceeding a configured size.
	KindCapacity
	// KindInternal covers an invariant violation.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuthFailure:
		return "auth"
	case KindProtocol:
		return "protocol"
	case KindRateLimited:
		return "rate-limited"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not-found"
	case KindCapacity:
		return "capacity"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the error type every public mesh operation returns. Caller-API
// errors (rate, permission, not-found, validation/capacity) are meant to be
// surfaced to the invoking local player as a one-line, style="error"
// message; transport/auth/protocol/internal errors are meant for the
// operator log and the stats command, never shown to players directly.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds an *Error, satisfying the "every public operation returns
// an explicit indicator with a kind tag" requirement without callers having
// to build the struct literal by hand everywhere.
func newError(k ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func wrapError(k ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Err: err}
}

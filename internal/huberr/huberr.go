// Package huberr defines the hub's error taxonomy. Every surface (gRPC,
// HTTP) maps a huberr.Kind onto its own status representation at the
// transport boundary. Lower layers wrap the errors a transport must
// classify (such as an unknown service_id) in an *Error; an error that
// wraps none is treated as Internal by KindOf.
package huberr

import "errors"

// Kind classifies an error for transport-boundary mapping.
type Kind int

const (
	// Internal is an unexpected failure; never crashes the hub.
	Internal Kind = iota
	// NotFound is returned for an unknown service_id or service_name.
	NotFound
	// InvalidArgument is returned for malformed input (bad JSON, missing
	// field, out-of-range port).
	InvalidArgument
	// DispatchFailure is returned when the Dynamic Proxy cannot reach or
	// is rejected by a downstream target.
	DispatchFailure
	// Timeout is a DispatchFailure whose cause was a deadline exceeded.
	Timeout
	// SlowSubscriber marks an event-bus consumer that fell behind and
	// had events dropped. Never surfaced to a caller as an error; only
	// ever logged.
	SlowSubscriber
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	case DispatchFailure:
		return "dispatch_failure"
	case Timeout:
		return "timeout"
	case SlowSubscriber:
		return "slow_subscriber"
	default:
		return "internal"
	}
}

// Error wraps a cause with a Kind so callers can branch with errors.As
// while transports only need Kind to pick a status code.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind and operation label. Returns nil if
// err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err, defaulting to Internal when err does
// not wrap a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ErrNotFound is a sentinel comparable with errors.Is for "no such
// service_id/service_name", the way the teacher's store package exposes
// store.ErrNotFound.
var ErrNotFound = errors.New("not found")

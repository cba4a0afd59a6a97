// Package xerrors is the uniform error taxonomy every layer of the client
// surfaces through: transports classify into it, the retry middleware
// reads IsTemporary off it, and callers switch on Kind rather than on
// transport-specific error types.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind is one abstract error kind from the taxonomy.
type Kind int

const (
	// Other is the default: permanent unless proven otherwise.
	Other Kind = iota
	// RateLimited is temporary; retry with backoff.
	RateLimited
	// Unavailable is temporary; retry with backoff.
	Unavailable
	// TransportIsBroken is temporary at the connection level; forces reconnect.
	TransportIsBroken
	// PingTimeout is temporary at the connection level; forces reconnect.
	PingTimeout
	// TransportTimeout is temporary at the connection level; forces reconnect.
	TransportTimeout
	// OrderNotFound is permanent; caller decides.
	OrderNotFound
	// KeyError is permanent.
	KeyError
	// Forbidden is permanent.
	Forbidden
	// Api wraps an exchange-reported message, permanent unless classified
	// into one of the above by the exchange adapter.
	Api
	// InstrumentNotFound is permanent.
	InstrumentNotFound
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case Unavailable:
		return "unavailable"
	case TransportIsBroken:
		return "transport_is_broken"
	case PingTimeout:
		return "ping_timeout"
	case TransportTimeout:
		return "transport_timeout"
	case OrderNotFound:
		return "order_not_found"
	case KeyError:
		return "key_error"
	case Forbidden:
		return "forbidden"
	case Api:
		return "api"
	case InstrumentNotFound:
		return "instrument_not_found"
	default:
		return "other"
	}
}

// Error is the concrete error value carrying a Kind, an optional exchange
// message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("excli: %s", e.Kind)
	}
	return fmt.Sprintf("excli: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return &Error{Kind: kind}
	}
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// KindOf extracts the Kind of err, or Other if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// IsTemporary reports whether err is recoverable by the retry layer: only
// RateLimited, Unavailable, and the three transport-level kinds qualify.
// Every other kind — including plain Api and Other — is permanent, and the
// caller decides what to do with it.
func IsTemporary(err error) bool {
	switch KindOf(err) {
	case RateLimited, Unavailable, TransportIsBroken, PingTimeout, TransportTimeout:
		return true
	default:
		return false
	}
}

// IsConnectionLevel reports whether err forces the reconnect layer to
// establish a new connection rather than simply retrying the call.
func IsConnectionLevel(err error) bool {
	switch KindOf(err) {
	case TransportIsBroken, PingTimeout, TransportTimeout:
		return true
	default:
		return false
	}
}

// ExitCode maps an error to the CLI exit-code convention: 0 success
// (never produced here), 1 permanent failure, 2 transient failure beyond
// the retry budget.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if IsTemporary(err) {
		return 2
	}
	return 1
}

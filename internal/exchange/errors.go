package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies connector failures for retry decisions.
type ErrorKind string

const (
	KindRateLimited       ErrorKind = "rate_limited"       // retry with backoff
	KindInsufficientFunds ErrorKind = "insufficient_funds" // abort entry, no retry
	KindInvalidOrder      ErrorKind = "invalid_order"      // skip, no retry
	KindNetworkTimeout    ErrorKind = "network_timeout"    // bounded retry
	KindUnknown           ErrorKind = "unknown"
)

// Error is a classified connector failure.
type Error struct {
	Kind ErrorKind
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("exchange: %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("exchange: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.err }

// NewError builds a classified error wrapping an underlying cause.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, err: err}
}

// KindOf extracts the classification from an error chain, mapping raw
// network timeouts and deadline expiry to KindNetworkTimeout.
func KindOf(err error) ErrorKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindNetworkTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkTimeout
	}
	return KindUnknown
}

// IsRetryable reports whether the failure is transient: rate limiting and
// network timeouts retry with backoff, everything else fails fast.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindNetworkTimeout:
		return true
	default:
		return false
	}
}

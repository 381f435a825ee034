package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeTimeoutErr struct{ timeout bool }

func (e *fakeTimeoutErr) Error() string   { return "net failure" }
func (e *fakeTimeoutErr) Timeout() bool   { return e.timeout }
func (e *fakeTimeoutErr) Temporary() bool { return e.timeout }

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"classified error", NewError(KindRateLimited, "throttled", nil), KindRateLimited},
		{"wrapped classified error", fmt.Errorf("cycle: %w", NewError(KindInvalidOrder, "bad", nil)), KindInvalidOrder},
		{"net timeout", &fakeTimeoutErr{timeout: true}, KindNetworkTimeout},
		{"net non-timeout", &fakeTimeoutErr{timeout: false}, KindUnknown},
		{"deadline exceeded", context.DeadlineExceeded, KindNetworkTimeout},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindNetworkTimeout},
		{"plain error", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.expected {
				t.Errorf("KindOf() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	retryable := []error{
		NewError(KindRateLimited, "", nil),
		NewError(KindNetworkTimeout, "", nil),
		context.DeadlineExceeded,
	}
	for _, err := range retryable {
		if !IsRetryable(err) {
			t.Errorf("expected %v to be retryable", err)
		}
	}

	fatal := []error{
		NewError(KindInsufficientFunds, "", nil),
		NewError(KindInvalidOrder, "", nil),
		NewError(KindUnknown, "", nil),
		errors.New("boom"),
	}
	for _, err := range fatal {
		if IsRetryable(err) {
			t.Errorf("expected %v to fail fast", err)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewError(KindNetworkTimeout, "place order", cause)

	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable via errors.Is")
	}
	if err.Error() != "exchange: network_timeout: place order" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

package ferror

import (
	"errors"
	"fmt"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindSecurity, 400},
		{KindAuthentication, 401},
		{KindAuthorization, 403},
		{KindRateLimit, 429},
		{KindValidation, 400},
		{KindNoRoute, 404},
		{KindMessageTooLarge, 413},
		{KindTimeout, 504},
		{KindPublishFailed, 502},
		{KindConnectFailed, 503},
		{KindInternal, 500},
		{Kind("unknown_kind"), 500},
	}
	for _, c := range cases {
		if got := c.kind.HTTPStatus(); got != c.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestIs(t *testing.T) {
	err := New(KindValidation, "bad payload")
	if !Is(err, KindValidation) {
		t.Error("Is() = false, want true for matching kind")
	}
	if Is(err, KindTimeout) {
		t.Error("Is() = true, want false for mismatched kind")
	}
	if Is(errors.New("plain error"), KindValidation) {
		t.Error("Is() = true for non-*Error, want false")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindConnectFailed, "dial broker", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	want := fmt.Sprintf("%s: dial broker: %v", KindConnectFailed, cause)
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := New(KindNoRoute, "no handler for topic")
	want := fmt.Sprintf("%s: no handler for topic", KindNoRoute)
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Unwrap() != nil {
		t.Error("Unwrap() on uncaused error should be nil")
	}
}

func TestFrom(t *testing.T) {
	original := New(KindRateLimit, "slow down")
	if got := From(original); got != original {
		t.Errorf("From() = %v, want the same *Error instance", got)
	}

	wrapped := fmt.Errorf("middleware: %w", original)
	if got := From(wrapped); got != original {
		t.Errorf("From() = %v, want the wrapped *Error unwrapped via errors.As", got)
	}

	plain := errors.New("plain error")
	got := From(plain)
	if got.Kind != KindInternal {
		t.Errorf("From(plain).Kind = %q, want %q", got.Kind, KindInternal)
	}
	if !errors.Is(got, plain) {
		t.Error("From(plain) should still wrap the original error as its cause")
	}
}

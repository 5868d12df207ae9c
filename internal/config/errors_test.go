package config

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTransientError_Unwrap(t *testing.T) {
	base := errors.New("socket closed")
	wrapped := NewTransientError(base)

	if !errors.Is(wrapped, base) {
		t.Error("expected wrapped error to match base via errors.Is")
	}
	if wrapped.Error() != "socket closed" {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), "socket closed")
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(errors.New("plain")) {
		t.Error("plain error should not be transient")
	}
	if !IsTransient(NewTransientError(errors.New("rpc timeout"))) {
		t.Error("wrapped error should be transient")
	}

	// Transience survives further wrapping.
	deep := fmt.Errorf("payout: %w", NewTransientError(errors.New("inner")))
	if !IsTransient(deep) {
		t.Error("transience should survive fmt.Errorf wrapping")
	}
}

func TestGetRetryAfter(t *testing.T) {
	if got := GetRetryAfter(errors.New("plain")); got != 0 {
		t.Errorf("GetRetryAfter(plain) = %v, want 0", got)
	}

	err := NewTransientErrorWithRetry(errors.New("rate limited"), 5*time.Second)
	if got := GetRetryAfter(err); got != 5*time.Second {
		t.Errorf("GetRetryAfter() = %v, want 5s", got)
	}
}

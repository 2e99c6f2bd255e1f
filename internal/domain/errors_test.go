package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTransportError(t *testing.T) {
	baseErr := errors.New("database is locked")

	t.Run("retriable error", func(t *testing.T) {
		err := NewTransportError("persist", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		if err.Error() != "TransportError: persist: database is locked" {
			t.Errorf("Error message = %q", err.Error())
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("fatal error", func(t *testing.T) {
		err := NewFatalTransportError("decode", baseErr)

		if err.IsRetriable() {
			t.Error("Expected error to not be retriable")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		retriable := fmt.Errorf("step: %w", NewTransportError("persist", baseErr))
		fatal := NewFatalTransportError("decode", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(retriable) {
			t.Error("IsRetriable should see through wrapping")
		}
		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for fatal error")
		}
		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
		if IsRetriable(fmt.Errorf("%w: raydium down", ErrNoQuoteAvailable)) {
			t.Error("NoQuoteAvailable must not be retried")
		}
	})
}

func TestExecutionError(t *testing.T) {
	cause := errors.New("slippage exceeded")
	err := fmt.Errorf("execute: %w", &ExecutionError{Venue: "Meteora", Reason: "swap reverted", Err: cause})

	if !errors.Is(err, ErrExecutionFailed) {
		t.Error("ExecutionError should match ErrExecutionFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("ExecutionError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "ExecutionFailed: Meteora: swap reverted") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("must be positive")
	err := &ConfigError{Field: "worker.concurrency", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [worker.concurrency]: must be positive"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "amount", Reason: "must be positive"}
	var ve *ValidationError
	if !errors.As(fmt.Errorf("submit: %w", err), &ve) {
		t.Fatal("expected errors.As to find ValidationError")
	}
	if ve.Field != "amount" {
		t.Errorf("Field = %q, want amount", ve.Field)
	}
}

package errors

import (
	"fmt"
	"testing"
)

func TestGateError_Error(t *testing.T) {
	err := &GateError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "buffer not found",
	}

	expected := "NOT_FOUND: buffer not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("uri is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "uri is required" {
		t.Errorf("Message = %q, want %q", err.Message, "uri is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("01HZX")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["bufferId"] != "01HZX" {
		t.Errorf("Details[bufferId] = %v, want %q", err.Details["bufferId"], "01HZX")
	}
}

func TestNewBackend(t *testing.T) {
	cause := fmt.Errorf("gopls: no package for file")
	err := NewBackend("get_hover", cause)

	if err.Code != ErrBackend {
		t.Errorf("Code = %q, want %q", err.Code, ErrBackend)
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if err.Message != cause.Error() {
		t.Errorf("Message = %q, want %q", err.Message, cause.Error())
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap() did not return the cause")
	}
}

func TestNewUnavailable(t *testing.T) {
	err := NewUnavailable("language server not running")

	if err.Code != ErrUnavailable {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnavailable)
	}
	if err.Status != 503 {
		t.Errorf("Status = %d, want 503", err.Status)
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("encode failed"))

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details["internal_error"] != "encode failed" {
			t.Errorf("Details[internal_error] = %q, want %q", err.Details["internal_error"], "encode failed")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		if !Is(NewNotFound("x"), ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		if Is(NewNotFound("x"), ErrBackend) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-GateError", func(t *testing.T) {
		if Is(fmt.Errorf("plain error"), ErrNotFound) {
			t.Error("Is() = true, want false for non-GateError")
		}
	})

	t.Run("wrapped GateError", func(t *testing.T) {
		wrapped := fmt.Errorf("retrieve: %w", NewNotFound("x"))
		if !Is(wrapped, ErrNotFound) {
			t.Error("Is() = false, want true for wrapped GateError")
		}
	})
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("get_hover: %w", NewNotFound("01HZX"))

	gErr, ok := As(wrapped)
	if !ok {
		t.Fatal("As() did not find the GateError")
	}
	if gErr.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", gErr.Code, ErrNotFound)
	}
	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("As() found a GateError in a plain error")
	}
}

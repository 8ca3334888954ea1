package errors

import (
	"fmt"
	"testing"
)

func TestRelayError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeSessionNotFound, "session not found")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeQueueWrite, "rewrite failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeQueueWrite) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeSessionNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("sessionId", "abc").WithDetail("attempt", 2)
	if detailed.Details["sessionId"] != "abc" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	// Test SessionNotFound
	err := SessionNotFound("sess-1")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}
	if err.Details["sessionId"] != "sess-1" {
		t.Error("SessionNotFound should include session detail")
	}

	// Test EventInvalid
	err = EventInvalid("session_id")
	if err.Code != ErrCodeEventInvalid {
		t.Errorf("expected code %s, got %s", ErrCodeEventInvalid, err.Code)
	}
	if err.Details["field"] != "session_id" {
		t.Error("EventInvalid should include field detail")
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(nil) != "" {
		t.Error("GetCode of nil should be empty")
	}

	wrapped := fmt.Errorf("outer: %w", APIConfig("no base URL"))
	if GetCode(wrapped) != ErrCodeAPIConfig {
		t.Errorf("GetCode should unwrap, got %s", GetCode(wrapped))
	}
}

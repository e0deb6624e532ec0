package network

import (
	"testing"
)

func TestNewSOCKS5Dialer_CreatesDialer(t *testing.T) {
	dialer, err := NewSOCKS5Dialer("127.0.0.1", 1080)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dialer == nil {
		t.Fatal("expected non-nil dialer")
	}
}

func TestNewSOCKS5Dialer_RejectsBadPort(t *testing.T) {
	if _, err := NewSOCKS5Dialer("127.0.0.1", 0); err == nil {
		t.Fatal("expected error for port 0")
	}
}

func TestContextDialer_EmptyHost_ReturnsNil(t *testing.T) {
	fn, err := ContextDialer("", 1080)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fn != nil {
		t.Fatal("expected nil function for empty host")
	}
}

func TestContextDialer_NonEmptyHost_ReturnsFunction(t *testing.T) {
	fn, err := ContextDialer("127.0.0.1", 1080)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fn == nil {
		t.Fatal("expected non-nil function for non-empty host")
	}
}

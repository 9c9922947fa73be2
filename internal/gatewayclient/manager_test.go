package gatewayclient

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestManagerRegisterUnregister(t *testing.T) {
	t.Parallel()

	m := NewManager(zerolog.Nop())
	s, err := New("token-a", false, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.Register(s)
	if got := m.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1", got)
	}

	if _, ok := m.Get("token-a"); !ok {
		t.Error("Get(\"token-a\") returned ok=false, want true")
	}

	m.Unregister("token-a")
	if got := m.ClientCount(); got != 0 {
		t.Fatalf("ClientCount() after Unregister = %d, want 0", got)
	}
}

func TestManagerGetMissing(t *testing.T) {
	t.Parallel()

	m := NewManager(zerolog.Nop())
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(\"missing\") returned ok=true, want false")
	}
}

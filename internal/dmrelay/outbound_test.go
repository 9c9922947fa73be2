package dmrelay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestOutboundWatcher(t *testing.T, relayURL string) *OutboundWatcher {
	t.Helper()
	return NewOutboundWatcher(nil, nil, nil, relayURL, zerolog.Nop())
}

func TestOutboundRelaySuccess(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := newTestOutboundWatcher(t, srv.URL)
	got := w.relay(context.Background(), "tok", "user-1", "hello", nil)
	if got != relaySuccess {
		t.Errorf("relay() = %v, want relaySuccess", got)
	}
}

func TestOutboundRelayFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := newTestOutboundWatcher(t, srv.URL)
	got := w.relay(context.Background(), "tok", "user-1", "hello", nil)
	if got != relayFailure {
		t.Errorf("relay() = %v, want relayFailure", got)
	}
}

func TestOutboundRelayUnavailable(t *testing.T) {
	t.Parallel()
	// A closed server's address refuses connections, simulating the relay
	// service being down.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	w := newTestOutboundWatcher(t, url)
	got := w.relay(context.Background(), "tok", "user-1", "hello", nil)
	if got != relayUnavailable {
		t.Errorf("relay() = %v, want relayUnavailable", got)
	}
}

func TestOutboundRelayTimedOut(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	w := newTestOutboundWatcher(t, srv.URL)
	got := w.relay(ctx, "tok", "user-1", "hello", nil)
	if got != relayTimedOut {
		t.Errorf("relay() = %v, want relayTimedOut", got)
	}
}

package gatewayclient

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// staggerInterval spaces out collector identify calls so a cold start does
// not send a burst of simultaneous IDENTIFYs to Discord.
const staggerInterval = 5 * time.Second

// Manager owns a registry of live Sessions, mirroring this codebase's
// mutex-protected client registry pattern (register/unregister under a
// lock) adapted from an inbound WebSocket hub to outbound gateway sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      zerolog.Logger
}

// NewManager creates an empty session registry.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		log:      logger.With().Str("component", "gatewayclient.manager").Logger(),
	}
}

// Register adds a session to the registry so Get and ClientCount can
// account for it.
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.TokenValue] = s
}

// Unregister removes a session, e.g. once its token is marked failed.
func (m *Manager) Unregister(tokenValue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenValue)
}

// Get returns the session for tokenValue, if registered.
func (m *Manager) Get(tokenValue string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tokenValue]
	return s, ok
}

// ClientCount reports how many sessions are currently registered.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartAll launches RunWithBackoff for every session supplied, staggering
// each start by staggerInterval * index to avoid an identify storm. It
// returns once ctx is cancelled and every session's goroutine has exited.
func (m *Manager) StartAll(ctx context.Context, sessions []*Session, attemptLimit int) {
	var wg sync.WaitGroup

	for i, s := range sessions {
		m.Register(s)

		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(i) * staggerInterval):
			}

			name := "gateway-session-" + s.TokenValue
			_ = RunWithBackoff(ctx, name, attemptLimit, m.log, s.Open)
		}(i, s)
	}

	wg.Wait()
}

// Package gatewayclient wraps a per-token Discord gateway session with the
// reconnect/backoff and failure-classification behavior spec §4.1 and §7
// require, adapted from this codebase's own WebSocket hub (which accepts
// inbound browser connections) to outbound sessions against Discord.
package gatewayclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/errkind"
)

// Handler receives every MESSAGE_CREATE event a Session observes, guild
// messages and DMs alike; telling them apart is left to the handler.
type Handler func(session *Session, m *discordgo.MessageCreate)

// Session owns one token's Discord gateway connection.
type Session struct {
	TokenValue string
	Bot        bool

	mu      sync.RWMutex
	session *discordgo.Session
	log     zerolog.Logger
	handler Handler
}

// New constructs a Session for a single token. bot selects "Bot "+token
// (republisher) versus a bare user-session authorization header (collector).
func New(tokenValue string, bot bool, handler Handler, logger zerolog.Logger) (*Session, error) {
	auth := tokenValue
	if bot {
		auth = "Bot " + tokenValue
	}

	dg, err := discordgo.New(auth)
	if err != nil {
		return nil, fmt.Errorf("construct discordgo session: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	s := &Session{
		TokenValue: tokenValue,
		Bot:        bot,
		session:    dg,
		log:        logger.With().Str("component", "gatewayclient").Bool("bot", bot).Logger(),
		handler:    handler,
	}
	dg.AddHandler(s.onMessageCreate)
	dg.AddHandler(s.onDisconnect)

	return s, nil
}

// Discord exposes the underlying *discordgo.Session for REST calls the
// republisher and DM relay need directly (channel/webhook CRUD, message
// send).
func (s *Session) Discord() *discordgo.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Open starts the gateway connection. Callers should run this inside
// RunWithBackoff so transient failures are retried and AuthInvalid is not.
func (s *Session) Open(ctx context.Context) error {
	if err := s.session.Open(); err != nil {
		return classifyOpenError(err)
	}
	<-ctx.Done()
	_ = s.session.Close()
	return ctx.Err()
}

func (s *Session) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if s.handler == nil {
		return
	}
	s.handler(s, m)
}

func (s *Session) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	s.log.Warn().Msg("gateway disconnected")
}

// classifyOpenError maps discordgo's Open() failure into the spec §7
// taxonomy: a 401-shaped failure is AuthInvalid (terminal for this token);
// anything else is GatewayTransient (retry with backoff).
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication failed") {
		return fmt.Errorf("open gateway session: %w", errors.Join(err, errkind.AuthInvalid))
	}
	return fmt.Errorf("open gateway session: %w", errors.Join(err, errkind.GatewayTransient))
}

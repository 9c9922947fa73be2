package dmrelay

import (
	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/gatewayclient"
	"github.com/1TapDev/1Tap-Notify/internal/httputil"
)

// Service runs the collector process's /send_dm endpoint (§4.4, §6): given a
// token value and peer user id, it opens (or reuses) a DM channel over that
// token's session and sends content/attachments through it.
type Service struct {
	manager *gatewayclient.Manager
	log     zerolog.Logger
}

// NewService builds a Service resolving tokens against manager's registered
// sessions.
func NewService(manager *gatewayclient.Manager, logger zerolog.Logger) *Service {
	return &Service{manager: manager, log: logger.With().Str("component", "dmrelay.service").Logger()}
}

type sendDMBody struct {
	Action      string   `json:"action"`
	Token       string   `json:"token"`
	UserID      string   `json:"user_id"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// RegisterRoutes mounts the /send_dm endpoint on app.
func (s *Service) RegisterRoutes(app *fiber.App) {
	app.Post("/send_dm", s.handleSendDM)
}

func (s *Service) handleSendDM(c fiber.Ctx) error {
	var body sendDMBody
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid_body", "request body must be JSON")
	}

	session, ok := s.manager.Get(body.Token)
	if !ok {
		return httputil.Fail(c, fiber.StatusNotFound, "unknown_token", "no live session for the given token")
	}

	if body.Action == "request_sync" {
		return httputil.Success(c, fiber.Map{"status": "ok"})
	}

	dg := session.Discord()
	ch, err := dg.UserChannelCreate(body.UserID, discordgo.WithContext(c.Context()))
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", body.UserID).Msg("failed to open dm channel for outbound relay")
		return httputil.Fail(c, fiber.StatusBadGateway, "dm_channel_failed", err.Error())
	}

	content := body.Content
	for _, url := range body.Attachments {
		content += "\n" + url
	}
	send := &discordgo.MessageSend{Content: content}
	if _, err := dg.ChannelMessageSendComplex(ch.ID, send, discordgo.WithContext(c.Context())); err != nil {
		s.log.Warn().Err(err).Str("user_id", body.UserID).Msg("failed to send outbound dm")
		return httputil.Fail(c, fiber.StatusBadGateway, "send_failed", err.Error())
	}

	return httputil.Success(c, fiber.Map{"status": "sent"})
}

package republisher

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/httputil"
	"github.com/1TapDev/1Tap-Notify/internal/queue"
)

// Server exposes the republisher's local HTTP endpoints: the dual-path
// /process_message ingest the collector also POSTs to, and /health (§6).
type Server struct {
	q   *queue.Queue
	log zerolog.Logger
}

// NewServer builds a Server that enqueues onto q.
func NewServer(q *queue.Queue, logger zerolog.Logger) *Server {
	return &Server{q: q, log: logger.With().Str("component", "republisher.server").Logger()}
}

// RegisterRoutes mounts this server's endpoints on app.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Post("/process_message", s.handleProcessMessage)
	app.Get("/health", s.handleHealth)
}

func (s *Server) handleProcessMessage(c fiber.Ctx) error {
	body := c.Body()

	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid_json", "body must be a JSON object")
	}
	if _, ok := probe.(map[string]any); !ok {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid_shape", "body must be a JSON object")
	}

	if err := s.q.Push(c.Context(), json.RawMessage(body)); err != nil {
		s.log.Error().Err(err).Msg("failed to enqueue message from http dual path")
		return httputil.Fail(c, fiber.StatusInternalServerError, "enqueue_failed", "failed to enqueue message")
	}

	return c.JSON(fiber.Map{"status": "success", "message": "enqueued"})
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return httputil.Success(c, fiber.Map{"status": "ok"})
}

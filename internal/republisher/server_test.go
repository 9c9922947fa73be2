package republisher

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/queue"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(client, "test-queue")
	return NewServer(q, zerolog.Nop())
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	app := fiber.New()
	s.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
}

func TestHandleProcessMessageEnqueues(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	app := fiber.New()
	s.RegisterRoutes(app)

	req := httptest.NewRequest(http.MethodPost, "/process_message", bytes.NewReader([]byte(`{"message_type":"regular","content":"hi"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
}

func TestHandleProcessMessageRejectsNonObject(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	app := fiber.New()
	s.RegisterRoutes(app)

	req := httptest.NewRequest(http.MethodPost, "/process_message", bytes.NewReader([]byte(`[1,2,3]`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}
}

func TestHandleProcessMessageRejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	app := fiber.New()
	s.RegisterRoutes(app)

	req := httptest.NewRequest(http.MethodPost, "/process_message", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}
}

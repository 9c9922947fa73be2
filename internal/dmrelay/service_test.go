package dmrelay

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/gatewayclient"
)

func TestHandleSendDMUnknownToken(t *testing.T) {
	t.Parallel()

	manager := gatewayclient.NewManager(zerolog.Nop())
	svc := NewService(manager, zerolog.Nop())

	app := fiber.New()
	svc.RegisterRoutes(app)

	body, err := json.Marshal(sendDMBody{Action: "send_dm", Token: "missing-token", UserID: "u1", Content: "hi"})
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/send_dm", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
	}
}

func TestHandleSendDMInvalidBody(t *testing.T) {
	t.Parallel()

	manager := gatewayclient.NewManager(zerolog.Nop())
	svc := NewService(manager, zerolog.Nop())

	app := fiber.New()
	svc.RegisterRoutes(app)

	req := httptest.NewRequest(http.MethodPost, "/send_dm", bytes.NewReader([]byte("not json")))
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

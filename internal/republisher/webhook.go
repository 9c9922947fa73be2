package republisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/1TapDev/1Tap-Notify/internal/attachment"
	"github.com/1TapDev/1Tap-Notify/internal/errkind"
	"github.com/1TapDev/1Tap-Notify/internal/message"
)

// ExecutePayload is the webhook execution body from §6.
type ExecutePayload struct {
	Username  string          `json:"username,omitempty"`
	AvatarURL string          `json:"avatar_url,omitempty"`
	Content   string          `json:"content,omitempty"`
	Embeds    []message.Embed `json:"embeds,omitempty"`
}

// outcome is what the caller should do after a webhook execution attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeReprovisionAndRetry
	outcomeDropChannelGone
	outcomeDropPayload
	outcomeTruncateAndRetry
	outcomeRateLimited
	outcomeServerError
)

// execResult is the classified result of one webhook execution attempt.
type execResult struct {
	outcome    outcome
	retryAfter time.Duration
	err        error
}

// WebhookClient executes webhook payloads and classifies the response per
// §4.2's HTTP execution contract.
type WebhookClient struct {
	http *http.Client
}

// NewWebhookClient builds a client with the 30s timeout this codebase uses
// for outbound Discord REST calls.
func NewWebhookClient() *WebhookClient {
	return &WebhookClient{http: &http.Client{Timeout: 30 * time.Second}}
}

// Execute POSTs payload, with optional file attachments, to webhookURL.
func (c *WebhookClient) Execute(ctx context.Context, webhookURL string, payload ExecutePayload, files []attachment.Prepared) execResult {
	req, err := buildWebhookRequest(ctx, webhookURL, payload, files)
	if err != nil {
		return execResult{outcome: outcomeDropPayload, err: fmt.Errorf("build webhook request: %w", err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return execResult{outcome: outcomeServerError, err: fmt.Errorf("%w: %v", errkind.UpstreamUnavailable, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	return classifyResponse(resp, string(body))
}

func classifyResponse(resp *http.Response, text string) execResult {
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return execResult{outcome: outcomeSuccess}
	case resp.StatusCode == http.StatusNotFound && strings.Contains(text, "Unknown Webhook"):
		return execResult{outcome: outcomeReprovisionAndRetry, err: errkind.WebhookUnknown}
	case resp.StatusCode == http.StatusNotFound && strings.Contains(text, "Unknown Channel"):
		return execResult{outcome: outcomeDropChannelGone, err: errkind.ChannelUnknown}
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return execResult{outcome: outcomeDropPayload, err: errkind.PayloadTooLarge}
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(text, "30005"):
		return execResult{outcome: outcomeDropPayload, err: fmt.Errorf("%w: role limit", errkind.BadRequest)}
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(text, "2000 or fewer"):
		return execResult{outcome: outcomeTruncateAndRetry, err: fmt.Errorf("%w: content length", errkind.BadRequest)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return execResult{outcome: outcomeRateLimited, retryAfter: parseRetryAfter(resp, text), err: errkind.RateLimited}
	case resp.StatusCode >= 500:
		return execResult{outcome: outcomeServerError, err: fmt.Errorf("webhook execute: status %d", resp.StatusCode)}
	default:
		return execResult{outcome: outcomeDropPayload, err: fmt.Errorf("webhook execute: unexpected status %d: %s", resp.StatusCode, text)}
	}
}

// parseRetryAfter prefers the JSON body's retry_after (Discord's rate limit
// bodies express it as fractional seconds), falling back to the
// Retry-After header.
func parseRetryAfter(resp *http.Response, body string) time.Duration {
	var parsed struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && parsed.RetryAfter > 0 {
		return time.Duration(parsed.RetryAfter * float64(time.Second))
	}
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.ParseFloat(header, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}

func buildWebhookRequest(ctx context.Context, webhookURL string, payload ExecutePayload, files []attachment.Prepared) (*http.Request, error) {
	url := webhookURL
	if strings.Contains(url, "?") {
		url += "&wait=true"
	} else {
		url += "?wait=true"
	}

	if len(files) == 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if err := mw.WriteField("payload_json", string(payloadJSON)); err != nil {
		return nil, fmt.Errorf("write payload_json field: %w", err)
	}

	for i, f := range files {
		part, err := mw.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Filename)
		if err != nil {
			return nil, fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write file part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

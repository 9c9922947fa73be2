package republisher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/1TapDev/1Tap-Notify/internal/attachment"
)

func TestWebhookClientExecuteSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewWebhookClient()
	res := c.Execute(context.Background(), srv.URL, ExecutePayload{Content: "hi"}, nil)
	if res.outcome != outcomeSuccess {
		t.Fatalf("outcome = %v, want outcomeSuccess (err=%v)", res.outcome, res.err)
	}
}

func TestWebhookClientExecuteUnknownWebhook(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Unknown Webhook","code":10015}`))
	}))
	defer srv.Close()

	c := NewWebhookClient()
	res := c.Execute(context.Background(), srv.URL, ExecutePayload{Content: "hi"}, nil)
	if res.outcome != outcomeReprovisionAndRetry {
		t.Fatalf("outcome = %v, want outcomeReprovisionAndRetry", res.outcome)
	}
}

func TestWebhookClientExecuteUnknownChannel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Unknown Channel","code":10003}`))
	}))
	defer srv.Close()

	c := NewWebhookClient()
	res := c.Execute(context.Background(), srv.URL, ExecutePayload{Content: "hi"}, nil)
	if res.outcome != outcomeDropChannelGone {
		t.Fatalf("outcome = %v, want outcomeDropChannelGone", res.outcome)
	}
}

func TestWebhookClientExecuteRoleLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Maximum number of server roles reached (30005)","code":30005}`))
	}))
	defer srv.Close()

	c := NewWebhookClient()
	res := c.Execute(context.Background(), srv.URL, ExecutePayload{Content: "hi"}, nil)
	if res.outcome != outcomeDropPayload {
		t.Fatalf("outcome = %v, want outcomeDropPayload", res.outcome)
	}
}

func TestWebhookClientExecuteContentTooLong(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Must be 2000 or fewer in length."}`))
	}))
	defer srv.Close()

	c := NewWebhookClient()
	res := c.Execute(context.Background(), srv.URL, ExecutePayload{Content: "hi"}, nil)
	if res.outcome != outcomeTruncateAndRetry {
		t.Fatalf("outcome = %v, want outcomeTruncateAndRetry", res.outcome)
	}
}

func TestWebhookClientExecuteRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"retry_after":0.25}`))
	}))
	defer srv.Close()

	c := NewWebhookClient()
	res := c.Execute(context.Background(), srv.URL, ExecutePayload{Content: "hi"}, nil)
	if res.outcome != outcomeRateLimited {
		t.Fatalf("outcome = %v, want outcomeRateLimited", res.outcome)
	}
	if res.retryAfter <= 0 {
		t.Errorf("retryAfter = %v, want > 0", res.retryAfter)
	}
}

func TestWebhookClientExecuteServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewWebhookClient()
	res := c.Execute(context.Background(), srv.URL, ExecutePayload{Content: "hi"}, nil)
	if res.outcome != outcomeServerError {
		t.Fatalf("outcome = %v, want outcomeServerError", res.outcome)
	}
}

func TestWebhookClientExecuteWithFiles(t *testing.T) {
	t.Parallel()

	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewWebhookClient()
	files := []attachment.Prepared{{Filename: "a.jpg", Data: []byte("fake image bytes"), ContentType: "image/jpeg"}}
	res := c.Execute(context.Background(), srv.URL, ExecutePayload{Content: "hi"}, files)
	if res.outcome != outcomeSuccess {
		t.Fatalf("outcome = %v, want outcomeSuccess", res.outcome)
	}
	if !containsMultipart(gotContentType) {
		t.Errorf("Content-Type = %q, want multipart/form-data", gotContentType)
	}
}

func containsMultipart(contentType string) bool {
	return len(contentType) >= len("multipart/form-data") && contentType[:len("multipart/form-data")] == "multipart/form-data"
}

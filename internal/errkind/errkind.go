// Package errkind holds the sentinel error taxonomy from spec §7. Call sites
// map transport-level errors (HTTP status codes, gateway close codes) onto
// these sentinels with errors.Join/fmt.Errorf("%w", ...) and branch on them
// with errors.Is.
package errkind

import "errors"

var (
	// AuthInvalid marks a token as permanently unusable until the config
	// file changes (invalid/revoked credential).
	AuthInvalid = errors.New("auth invalid")

	// GatewayTransient marks a disconnect/resume/reset that should be
	// retried with backoff rather than surfaced to the operator.
	GatewayTransient = errors.New("gateway transient error")

	// WebhookUnknown corresponds to a 404 "Unknown Webhook" response; the
	// route must be evicted and reprovisioned.
	WebhookUnknown = errors.New("webhook unknown")

	// ChannelUnknown corresponds to a 404 "Unknown Channel" response; the
	// route must be evicted and the message dropped.
	ChannelUnknown = errors.New("channel unknown")

	// RateLimited corresponds to a 429 response; the caller should honor
	// the retry_after value before retrying.
	RateLimited = errors.New("rate limited")

	// PayloadTooLarge corresponds to a 413 response after compression has
	// already been attempted; the message is dropped.
	PayloadTooLarge = errors.New("payload too large")

	// BadRequest corresponds to a 400 response with a known, non-retryable
	// error code (role-limit, content-length).
	BadRequest = errors.New("bad request")

	// UpstreamUnavailable marks an HTTP egress failure (connection refused,
	// timeout) that should be retried indefinitely at a fixed interval.
	UpstreamUnavailable = errors.New("upstream unavailable")

	// ConfigInvalid marks a reloaded configuration file that failed
	// validation; the previous snapshot is kept.
	ConfigInvalid = errors.New("config invalid")
)

package gatewayclient

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/errkind"
)

const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 60 * time.Second
)

// RunWithBackoff runs fn repeatedly until ctx is cancelled, fn returns nil,
// or fn returns an error wrapping errkind.AuthInvalid (a permanently failed
// token that must not be retried until the config file changes). Every other
// error is treated as errkind.GatewayTransient and retried with exponential
// backoff starting at 5s and capping at 60s, matching this codebase's
// background-service supervision style.
//
// attemptLimit bounds the number of consecutive transient failures before
// RunWithBackoff gives up and returns the last error; 0 means unlimited.
func RunWithBackoff(ctx context.Context, name string, attemptLimit int, log zerolog.Logger, fn func(context.Context) error) error {
	backoff := initialBackoff
	attempts := 0

	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errkind.AuthInvalid) {
			log.Error().Err(err).Str("service", name).Msg("token permanently failed, not retrying")
			return err
		}

		attempts++
		if attemptLimit > 0 && attempts >= attemptLimit {
			log.Error().Err(err).Str("service", name).Int("attempts", attempts).Msg("giving up after max attempts")
			return err
		}

		log.Warn().Err(err).Str("service", name).Dur("backoff", backoff).Msg("restarting after error")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

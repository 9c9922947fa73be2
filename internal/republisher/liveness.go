package republisher

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

// livenessInterval is how often every stored webhook route is HEAD-checked
// (§4.2's liveness sweep).
const livenessInterval = 30 * time.Minute

// LivenessSweeper periodically verifies every stored webhook still answers,
// evicting routes Discord no longer recognizes.
type LivenessSweeper struct {
	store *routingstore.Store
	http  *http.Client
	log   zerolog.Logger
}

// NewLivenessSweeper builds a sweeper over store's current webhook routes.
func NewLivenessSweeper(store *routingstore.Store, logger zerolog.Logger) *LivenessSweeper {
	return &LivenessSweeper{
		store: store,
		http:  &http.Client{Timeout: 10 * time.Second},
		log:   logger.With().Str("component", "republisher.liveness").Logger(),
	}
}

// Run sweeps every livenessInterval until ctx is cancelled.
func (s *LivenessSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *LivenessSweeper) sweep(ctx context.Context) {
	routes, err := s.store.AllWebhooks(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to list webhook routes for liveness sweep")
		return
	}

	for routeKey, url := range routes {
		if s.isDead(ctx, url) {
			if err := s.store.DeleteWebhook(ctx, routeKey); err != nil {
				s.log.Warn().Err(err).Str("route_key", routeKey).Msg("failed to evict dead webhook route")
				continue
			}
			s.log.Info().Str("route_key", routeKey).Msg("evicted dead webhook route")
		}
	}
}

func (s *LivenessSweeper) isDead(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.http.Do(req)
	if err != nil {
		// A transport failure is not itself proof the webhook is gone.
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// Package routingstore is the durable map of webhook routes, DM routes,
// message dedup markers, channel-age records, and bot-instance discovery
// metadata described in spec §4.3. It is backed by Redis/Valkey and mirrors
// webhook-route writes into an in-process cache so repeated webhook lookups
// skip the network; every other read goes to Redis.
package routingstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/config"
)

const (
	webhookHashKey   = "webhooks"
	routeChannelHash = "route_channels"
	monitoringHash   = "channel_monitoring"
	monitoringReverseHash = "channel_monitoring_reverse"
	dedupSetKey      = "recent_messages"
	botInstancesKey  = "bot_instances"
	channelAgePrefix = "channel_created_"
	dmRoutePrefix    = "dm_route_"
	dmPeerIndexHash  = "dm_peer_index"

	dedupTTL     = 4 * time.Hour
	channelAgeTTL = 30 * 24 * time.Hour
)

// Store provides the Redis-backed routing contract from spec §4.3. All
// methods treat a missing key as "not yet provisioned" rather than an error.
type Store struct {
	rdb *redis.Client
	log zerolog.Logger

	mu       sync.RWMutex
	webhooks map[string]string // route key -> webhook URL, read-through cache
}

// New wraps an already-connected Redis client.
func New(rdb *redis.Client, logger zerolog.Logger) *Store {
	return &Store{
		rdb:      rdb,
		log:      logger.With().Str("component", "routingstore").Logger(),
		webhooks: make(map[string]string),
	}
}

// Connect dials the key-value store backing this Routing Store (spec §4.3).
// Both the Collector and Republisher processes accept either a valkey:// or
// redis:// connection string for that store; go-redis only understands the
// redis:// scheme, so valkey:// is rewritten before parsing. dialTimeout
// bounds how long the initial connection and verifying Ping may take.
func Connect(ctx context.Context, rawURL string, dialTimeout time.Duration) (*redis.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse routing store URL: %w", err)
	}
	if strings.EqualFold(parsed.Scheme, "valkey") {
		parsed.Scheme = "redis"
	}

	opts, err := redis.ParseURL(parsed.String())
	if err != nil {
		return nil, fmt.Errorf("parse routing store URL: %w", err)
	}
	opts.DialTimeout = dialTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping routing store: %w", err)
	}

	return client, nil
}

// PutWebhook stores the webhook URL for routeKey, updating both Redis and
// the in-process cache.
func (s *Store) PutWebhook(ctx context.Context, routeKey, url string) error {
	if err := s.rdb.HSet(ctx, webhookHashKey, routeKey, url).Err(); err != nil {
		return fmt.Errorf("put webhook route: %w", err)
	}
	s.mu.Lock()
	s.webhooks[routeKey] = url
	s.mu.Unlock()
	return nil
}

// GetWebhook resolves routeKey, consulting the in-process cache first and
// falling through to Redis on a miss, matching the read-through pattern used
// elsewhere in this codebase for request-scoped lookups.
func (s *Store) GetWebhook(ctx context.Context, routeKey string) (string, bool, error) {
	s.mu.RLock()
	if url, ok := s.webhooks[routeKey]; ok {
		s.mu.RUnlock()
		return url, true, nil
	}
	s.mu.RUnlock()

	url, err := s.rdb.HGet(ctx, webhookHashKey, routeKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get webhook route: %w", err)
	}

	s.mu.Lock()
	s.webhooks[routeKey] = url
	s.mu.Unlock()
	return url, true, nil
}

// AllWebhooks returns every stored route key to webhook URL mapping, used by
// the liveness sweep to enumerate what to probe.
func (s *Store) AllWebhooks(ctx context.Context) (map[string]string, error) {
	routes, err := s.rdb.HGetAll(ctx, webhookHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list webhook routes: %w", err)
	}
	return routes, nil
}

// DeleteWebhook evicts routeKey from both Redis and the in-process cache,
// used after a liveness sweep or a 404 Unknown Webhook response.
func (s *Store) DeleteWebhook(ctx context.Context, routeKey string) error {
	if err := s.rdb.HDel(ctx, webhookHashKey, routeKey).Err(); err != nil {
		return fmt.Errorf("delete webhook route: %w", err)
	}
	s.mu.Lock()
	delete(s.webhooks, routeKey)
	s.mu.Unlock()
	return nil
}

// PutRouteChannel records the destination channel id a webhook route's
// messages are posted into, so a route served from the webhook map can still
// report its destination channel without reprovisioning.
func (s *Store) PutRouteChannel(ctx context.Context, routeKey, channelID string) error {
	if err := s.rdb.HSet(ctx, routeChannelHash, routeKey, channelID).Err(); err != nil {
		return fmt.Errorf("put route channel: %w", err)
	}
	return nil
}

// GetRouteChannel returns the destination channel id stored for routeKey.
func (s *Store) GetRouteChannel(ctx context.Context, routeKey string) (string, bool, error) {
	channelID, err := s.rdb.HGet(ctx, routeChannelHash, routeKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get route channel: %w", err)
	}
	return channelID, true, nil
}

// AllRouteChannels returns every stored route key to destination channel id
// mapping, used by the Layout Guardian to find channels routed into a
// moveable category's namespace that have not yet been parented there.
func (s *Store) AllRouteChannels(ctx context.Context) (map[string]string, error) {
	routes, err := s.rdb.HGetAll(ctx, routeChannelHash).Result()
	if err != nil {
		return nil, fmt.Errorf("list route channels: %w", err)
	}
	return routes, nil
}

// PutDMRoute persists a DMRoute keyed by destination channel id, and indexes
// it by peer user id so a later inbound DM from the same peer resolves
// straight to the existing channel instead of re-listing and re-creating.
func (s *Store) PutDMRoute(ctx context.Context, channelID string, route config.DMRoute) error {
	data, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("marshal dm route: %w", err)
	}
	if err := s.rdb.Set(ctx, dmRoutePrefix+channelID, data, 0).Err(); err != nil {
		return fmt.Errorf("put dm route: %w", err)
	}
	if route.UserID != "" {
		if err := s.rdb.HSet(ctx, dmPeerIndexHash, route.UserID, channelID).Err(); err != nil {
			return fmt.Errorf("index dm route by peer: %w", err)
		}
	}
	return nil
}

// DestinationChannelForPeer resolves a peer user id to the destination
// channel id already provisioned to mirror DMs with them, if any.
func (s *Store) DestinationChannelForPeer(ctx context.Context, peerUserID string) (string, bool, error) {
	channelID, err := s.rdb.HGet(ctx, dmPeerIndexHash, peerUserID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get dm route by peer: %w", err)
	}
	return channelID, true, nil
}

// GetDMRoute looks up the DMRoute for a destination channel id.
func (s *Store) GetDMRoute(ctx context.Context, channelID string) (config.DMRoute, bool, error) {
	data, err := s.rdb.Get(ctx, dmRoutePrefix+channelID).Bytes()
	if errors.Is(err, redis.Nil) {
		return config.DMRoute{}, false, nil
	}
	if err != nil {
		return config.DMRoute{}, false, fmt.Errorf("get dm route: %w", err)
	}
	var route config.DMRoute
	if err := json.Unmarshal(data, &route); err != nil {
		return config.DMRoute{}, false, fmt.Errorf("unmarshal dm route: %w", err)
	}
	return route, true, nil
}

// SetChannelAge records a destination channel's creation timestamp with a
// 30-day TTL, well past the 24h and 7-day retention windows the Layout
// Guardian enforces.
func (s *Store) SetChannelAge(ctx context.Context, channelID string, createdAt time.Time) error {
	if err := s.rdb.Set(ctx, channelAgePrefix+channelID, createdAt.Format(time.RFC3339), channelAgeTTL).Err(); err != nil {
		return fmt.Errorf("set channel age: %w", err)
	}
	return nil
}

// ChannelAge returns the recorded creation timestamp for a destination
// channel, if any.
func (s *Store) ChannelAge(ctx context.Context, channelID string) (time.Time, bool, error) {
	raw, err := s.rdb.Get(ctx, channelAgePrefix+channelID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get channel age: %w", err)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse channel age: %w", err)
	}
	return t, true, nil
}

// MarkSeen records messageID in the dedup set with a 4h expiry and reports
// whether it had already been seen.
func (s *Store) MarkSeen(ctx context.Context, messageID string) (alreadySeen bool, err error) {
	added, err := s.rdb.SAdd(ctx, dedupSetKey, messageID).Result()
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	// Refresh the set's TTL on every write so it behaves like a sliding
	// window rather than expiring the whole set on a quiet period.
	_ = s.rdb.Expire(ctx, dedupSetKey, dedupTTL).Err()
	return added == 0, nil
}

// TrackSourceChannel records which source channel a destination channel
// mirrors, so the deleted-channel watcher can find it again. It also writes
// the reverse index so a deleted-source event can resolve straight back to
// the destination channel to remove.
func (s *Store) TrackSourceChannel(ctx context.Context, destinationChannelID, sourceChannelID string) error {
	if err := s.rdb.HSet(ctx, monitoringHash, destinationChannelID, sourceChannelID).Err(); err != nil {
		return fmt.Errorf("track source channel: %w", err)
	}
	if err := s.rdb.HSet(ctx, monitoringReverseHash, sourceChannelID, destinationChannelID).Err(); err != nil {
		return fmt.Errorf("track reverse source channel: %w", err)
	}
	return nil
}

// DestinationForSource resolves a source channel id to the destination
// channel id mirroring it, used when the collector reports that the source
// channel was deleted (§4.1's deleted-channel watcher).
func (s *Store) DestinationForSource(ctx context.Context, sourceChannelID string) (string, bool, error) {
	destID, err := s.rdb.HGet(ctx, monitoringReverseHash, sourceChannelID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get reverse channel mapping: %w", err)
	}
	return destID, true, nil
}

// UntrackChannel removes both the forward and reverse channel_monitoring
// entries, used once a destination channel has been deleted.
func (s *Store) UntrackChannel(ctx context.Context, destinationChannelID, sourceChannelID string) error {
	if err := s.rdb.HDel(ctx, monitoringHash, destinationChannelID).Err(); err != nil {
		return fmt.Errorf("untrack channel: %w", err)
	}
	if sourceChannelID != "" {
		if err := s.rdb.HDel(ctx, monitoringReverseHash, sourceChannelID).Err(); err != nil {
			return fmt.Errorf("untrack reverse channel: %w", err)
		}
	}
	return nil
}

// DeleteChannelAge removes the recorded creation timestamp for a destination
// channel, used once it has been deleted by the retention loop.
func (s *Store) DeleteChannelAge(ctx context.Context, channelID string) error {
	if err := s.rdb.Del(ctx, channelAgePrefix+channelID).Err(); err != nil {
		return fmt.Errorf("delete channel age: %w", err)
	}
	return nil
}

// BotInstance is a single token's discovery metadata, published by each
// collector every 30s so the control plane can enumerate live sessions.
type BotInstance struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Guilds   []string `json:"guilds"`
}

// PublishBotInstances overwrites the bot_instances registry with the current
// set of live collector sessions.
func (s *Store) PublishBotInstances(ctx context.Context, instances map[string]BotInstance) error {
	data, err := json.Marshal(instances)
	if err != nil {
		return fmt.Errorf("marshal bot instances: %w", err)
	}
	if err := s.rdb.Set(ctx, botInstancesKey, data, 0).Err(); err != nil {
		return fmt.Errorf("publish bot instances: %w", err)
	}
	return nil
}

// BotInstances returns the last-published registry of live collector
// sessions, keyed by token value.
func (s *Store) BotInstances(ctx context.Context) (map[string]BotInstance, error) {
	data, err := s.rdb.Get(ctx, botInstancesKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]BotInstance{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bot instances: %w", err)
	}
	var instances map[string]BotInstance
	if err := json.Unmarshal(data, &instances); err != nil {
		return nil, fmt.Errorf("unmarshal bot instances: %w", err)
	}
	return instances, nil
}

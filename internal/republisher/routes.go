package republisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/message"
	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

const webhookName = "1Tap Notify"

// Route is a resolved destination for a normalized message: where to POST
// and which destination channel it lives in.
type Route struct {
	WebhookURL string
	ChannelID  string
}

// RouteResolver provisions and caches the (category, server, channel) to
// destination-channel/webhook mapping from §4.2.
type RouteResolver struct {
	dg       *discordgo.Session
	snapshot *config.Snapshot
	store    *routingstore.Store
	log      zerolog.Logger
}

// NewRouteResolver builds a resolver operating against the destination
// guild through dg.
func NewRouteResolver(dg *discordgo.Session, snapshot *config.Snapshot, store *routingstore.Store, logger zerolog.Logger) *RouteResolver {
	return &RouteResolver{
		dg:       dg,
		snapshot: snapshot,
		store:    store,
		log:      logger.With().Str("component", "republisher.routes").Logger(),
	}
}

// Resolve returns the webhook route for norm, provisioning a destination
// channel and webhook if this is the first message seen for its
// (category, server, channel) triple.
func (r *RouteResolver) Resolve(ctx context.Context, norm message.Normalized) (Route, error) {
	routeKey := message.RouteKey(norm.CategoryName, norm.ServerName, norm.ChannelName)

	if url, ok, err := r.store.GetWebhook(ctx, routeKey); err != nil {
		return Route{}, fmt.Errorf("lookup webhook route: %w", err)
	} else if ok {
		channelID, _, err := r.store.GetRouteChannel(ctx, routeKey)
		if err != nil {
			return Route{}, fmt.Errorf("lookup route channel: %w", err)
		}
		return Route{WebhookURL: url, ChannelID: channelID}, nil
	}

	return r.provision(ctx, routeKey, norm)
}

// Evict removes a stale route so the next Resolve reprovisions it.
func (r *RouteResolver) Evict(ctx context.Context, routeKey string) error {
	return r.store.DeleteWebhook(ctx, routeKey)
}

func (r *RouteResolver) provision(ctx context.Context, routeKey string, norm message.Normalized) (Route, error) {
	cfg := r.snapshot.Load()
	destGuildID := cfg.DestinationServer

	forumKey := message.NormalizeKey(norm.CategoryName) + "-[" + message.NormalizeKey(norm.ServerName) + "]"
	if forumChannelID, ok := cfg.ForumMappings[forumKey]; ok {
		return r.provisionForumThread(ctx, routeKey, forumChannelID, norm)
	}

	channelID, err := r.findOrCreateTextChannel(ctx, destGuildID, norm)
	if err != nil {
		return Route{}, err
	}

	url, err := r.ensureWebhook(ctx, channelID)
	if err != nil {
		return Route{}, err
	}

	if err := r.store.PutWebhook(ctx, routeKey, url); err != nil {
		return Route{}, fmt.Errorf("store webhook route: %w", err)
	}
	if err := r.store.PutRouteChannel(ctx, routeKey, channelID); err != nil {
		return Route{}, fmt.Errorf("store route channel: %w", err)
	}
	if err := r.store.TrackSourceChannel(ctx, channelID, norm.ChannelID); err != nil {
		r.log.Warn().Err(err).Msg("failed to record source-channel mapping")
	}

	return Route{WebhookURL: url, ChannelID: channelID}, nil
}

func (r *RouteResolver) provisionForumThread(ctx context.Context, routeKey, forumChannelID string, norm message.Normalized) (Route, error) {
	thread, err := r.dg.MessageThreadStartComplex(forumChannelID, "", &discordgo.ThreadStart{
		Name: norm.ChannelName,
		Type: discordgo.ChannelTypeGuildPublicThread,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return Route{}, fmt.Errorf("create forum thread: %w", err)
	}

	if _, err := r.dg.ChannelMessageSendComplex(thread.ID, &discordgo.MessageSend{
		Content: fmt.Sprintf("Mirroring **#%s** from **%s**", norm.ChannelName, norm.ServerName),
	}, discordgo.WithContext(ctx)); err != nil {
		r.log.Warn().Err(err).Msg("failed to send forum thread starter message")
	}

	url, err := r.ensureWebhook(ctx, thread.ID)
	if err != nil {
		return Route{}, err
	}

	if err := r.store.PutWebhook(ctx, routeKey, url); err != nil {
		return Route{}, fmt.Errorf("store webhook route: %w", err)
	}
	if err := r.store.PutRouteChannel(ctx, routeKey, thread.ID); err != nil {
		return Route{}, fmt.Errorf("store route channel: %w", err)
	}

	return Route{WebhookURL: url, ChannelID: thread.ID}, nil
}

// candidateNames returns the name forms §4.2 searches destination text
// channels for, in priority order, before falling back to channel creation.
func candidateNames(channel, server string) []string {
	c, s := message.NormalizeKey(channel), message.NormalizeKey(server)
	return []string{
		c + " [" + s + "]",
		c + "-" + s,
		c + "_" + s,
		s + "-" + c,
	}
}

func (r *RouteResolver) findOrCreateTextChannel(ctx context.Context, guildID string, norm message.Normalized) (string, error) {
	channels, err := r.dg.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list destination channels: %w", err)
	}

	wanted := candidateNames(norm.ChannelName, norm.ServerName)
	for _, name := range wanted {
		for _, ch := range channels {
			if ch.Type == discordgo.ChannelTypeGuildText && strings.EqualFold(ch.Name, name) {
				return ch.ID, nil
			}
		}
	}

	created, err := r.dg.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: wanted[0],
		Type: discordgo.ChannelTypeGuildText,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create destination channel: %w", err)
	}

	if err := r.store.SetChannelAge(ctx, created.ID, time.Now()); err != nil {
		r.log.Warn().Err(err).Msg("failed to record new channel's age")
	}

	return created.ID, nil
}

func (r *RouteResolver) ensureWebhook(ctx context.Context, channelID string) (string, error) {
	webhooks, err := r.dg.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err == nil {
		for _, wh := range webhooks {
			if wh.Name == webhookName && wh.Token != "" {
				return webhookURL(wh), nil
			}
		}
	}

	wh, err := r.dg.WebhookCreate(channelID, webhookName, "", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create webhook: %w", err)
	}
	return webhookURL(wh), nil
}

func webhookURL(wh *discordgo.Webhook) string {
	return "https://discord.com/api/webhooks/" + wh.ID + "/" + wh.Token
}

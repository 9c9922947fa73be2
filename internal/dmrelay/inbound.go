// Package dmrelay mirrors direct messages bidirectionally between a peer
// and the managed tokens, per spec §4.4: inbound peer→self DMs are
// provisioned into a per-peer destination channel, and messages authored in
// those channels by allowed users are relayed back out to the peer.
package dmrelay

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/message"
	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

const webhookName = "DM Mirror"

// Inbound provisions destination DM-mirror channels and routes inbound
// peer→self direct messages through them.
type Inbound struct {
	dg    *discordgo.Session
	store *routingstore.Store
	log   zerolog.Logger
}

// NewInbound builds an Inbound relay acting against the destination guild
// through dg (the republisher's bot session).
func NewInbound(dg *discordgo.Session, store *routingstore.Store, logger zerolog.Logger) *Inbound {
	return &Inbound{dg: dg, store: store, log: logger.With().Str("component", "dmrelay.inbound").Logger()}
}

// Route is the resolved destination channel/webhook for a peer's DM,
// provisioning it on first contact.
type Route struct {
	ChannelID  string
	WebhookURL string
}

// Resolve returns the destination DM-mirror channel/webhook for norm's peer,
// creating the "@{self} [DM]" category, the per-peer channel, and the
// webhook on first contact, and persisting the DMRoute (§4.4).
func (in *Inbound) Resolve(ctx context.Context, destGuildID string, norm message.Normalized) (Route, error) {
	if channelID, ok, err := in.store.DestinationChannelForPeer(ctx, norm.DMUserID); err != nil {
		return Route{}, fmt.Errorf("lookup dm route by peer: %w", err)
	} else if ok {
		url, err := in.ensureWebhook(ctx, channelID)
		if err != nil {
			return Route{}, err
		}
		return Route{ChannelID: channelID, WebhookURL: url}, nil
	}

	return in.provision(ctx, destGuildID, norm)
}

func (in *Inbound) provision(ctx context.Context, destGuildID string, norm message.Normalized) (Route, error) {
	selfName := norm.SelfUsername
	if selfName == "" {
		selfName = norm.SelfUserID
	}
	categoryName := "@" + selfName + " [DM]"

	categoryID, err := in.findOrCreateCategory(ctx, destGuildID, categoryName)
	if err != nil {
		return Route{}, err
	}

	channelName := "dm-" + message.NormalizeKey(norm.DMUsername)
	channelID, err := in.findOrCreateChannel(ctx, destGuildID, categoryID, channelName)
	if err != nil {
		return Route{}, err
	}

	url, err := in.ensureWebhook(ctx, channelID)
	if err != nil {
		return Route{}, err
	}

	route := config.DMRoute{
		UserID:         norm.DMUserID,
		Username:       norm.DMUsername,
		SelfUserID:     norm.SelfUserID,
		ReceivingToken: norm.ReceivingToken,
	}
	if err := in.store.PutDMRoute(ctx, channelID, route); err != nil {
		return Route{}, fmt.Errorf("store dm route: %w", err)
	}

	in.postInfoEmbed(ctx, channelID, route)

	return Route{ChannelID: channelID, WebhookURL: url}, nil
}

func (in *Inbound) findOrCreateCategory(ctx context.Context, guildID, name string) (string, error) {
	channels, err := in.dg.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list destination channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && strings.EqualFold(ch.Name, name) {
			return ch.ID, nil
		}
	}

	created, err := in.dg.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildCategory,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create dm category: %w", err)
	}
	return created.ID, nil
}

func (in *Inbound) findOrCreateChannel(ctx context.Context, guildID, categoryID, name string) (string, error) {
	channels, err := in.dg.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list destination channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.ParentID == categoryID && strings.EqualFold(ch.Name, name) {
			return ch.ID, nil
		}
	}

	created, err := in.dg.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: categoryID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create dm channel: %w", err)
	}
	return created.ID, nil
}

func (in *Inbound) ensureWebhook(ctx context.Context, channelID string) (string, error) {
	webhooks, err := in.dg.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err == nil {
		for _, wh := range webhooks {
			if wh.Name == webhookName && wh.Token != "" {
				return "https://discord.com/api/webhooks/" + wh.ID + "/" + wh.Token, nil
			}
		}
	}

	wh, err := in.dg.WebhookCreate(channelID, webhookName, "", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create dm webhook: %w", err)
	}
	return "https://discord.com/api/webhooks/" + wh.ID + "/" + wh.Token, nil
}

// truncateToken keeps the informational embed from leaking a usable
// credential while still letting an operator recognize which token a
// channel is bound to.
func truncateToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:8] + "…" + token[len(token)-4:]
}

func (in *Inbound) postInfoEmbed(ctx context.Context, channelID string, route config.DMRoute) {
	embed := &discordgo.MessageEmbed{
		Title: "DM mirror established",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Peer user id", Value: route.UserID, Inline: true},
			{Name: "Self user id", Value: route.SelfUserID, Inline: true},
			{Name: "Relay token", Value: truncateToken(route.ReceivingToken), Inline: true},
		},
	}
	if _, err := in.dg.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx)); err != nil {
		in.log.Warn().Err(err).Str("channel_id", channelID).Msg("failed to post dm mirror info embed")
	}
}

package layout

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// retentionInterval is the Retention loop's tick period (§4.5).
const retentionInterval = 30 * time.Minute

// dailyScheduleMaxAge is how long a Daily Schedule channel may live before
// expiring, absent protection.
const dailyScheduleMaxAge = 24 * time.Hour

// releaseGuidesMaxAge is how long a Release Guides channel with no encoded
// past date may live before expiring on age alone.
const releaseGuidesMaxAge = 7 * 24 * time.Hour

// RunRetention sweeps both moveable categories for expired channels every
// tick until ctx is cancelled.
func (g *Guardian) RunRetention(ctx context.Context) error {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.Retain(ctx)
		}
	}
}

// Retain runs a single retention pass over both moveable categories.
func (g *Guardian) Retain(ctx context.Context) {
	cfg := g.snapshot.Load()
	now := time.Now()

	if cfg.DailyScheduleCategoryID != "" {
		g.retainDailySchedule(ctx, cfg.DestinationServer, cfg.DailyScheduleCategoryID, now)
	}
	if cfg.ReleaseGuidesCategoryID != "" {
		g.retainReleaseGuides(ctx, cfg.DestinationServer, cfg.ReleaseGuidesCategoryID, now)
	}
}

func (g *Guardian) retainDailySchedule(ctx context.Context, guildID, categoryID string, now time.Time) {
	channels, err := g.dg.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to list channels for daily schedule retention")
		return
	}

	for _, ch := range channels {
		if ch.ParentID != categoryID || g.isProtected(ch.ID) {
			continue
		}
		age, ok := g.channelAge(ctx, ch, now)
		if !ok || age < dailyScheduleMaxAge {
			continue
		}
		g.deleteChannel(ctx, ch.ID)
	}
}

func (g *Guardian) retainReleaseGuides(ctx context.Context, guildID, categoryID string, now time.Time) {
	channels, err := g.dg.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to list channels for release guides retention")
		return
	}

	for _, ch := range channels {
		if ch.ParentID != categoryID || g.isProtected(ch.ID) {
			continue
		}

		if d, ok := ParseReleaseDate(ch.Name, now.Year()); ok {
			if d.Before(now) {
				g.deleteChannel(ctx, ch.ID)
			}
			continue
		}

		age, ok := g.channelAge(ctx, ch, now)
		if ok && age >= releaseGuidesMaxAge {
			g.deleteChannel(ctx, ch.ID)
		}
	}
}

// channelAge prefers the channel's own Discord creation timestamp (decoded
// from its snowflake id) and falls back to the Routing Store's
// channel_created_<id> record when the id can't be parsed.
func (g *Guardian) channelAge(ctx context.Context, ch *discordgo.Channel, now time.Time) (time.Duration, bool) {
	if created, err := discordgo.SnowflakeTimestamp(ch.ID); err == nil {
		return now.Sub(created), true
	}
	if created, ok, err := g.store.ChannelAge(ctx, ch.ID); err == nil && ok {
		return now.Sub(created), true
	}
	return 0, false
}

func (g *Guardian) deleteChannel(ctx context.Context, channelID string) {
	if _, err := g.dg.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		g.log.Warn().Err(err).Str("channel_id", channelID).Msg("failed to delete expired channel")
		return
	}
	if err := g.store.DeleteChannelAge(ctx, channelID); err != nil {
		g.log.Warn().Err(err).Str("channel_id", channelID).Msg("failed to clear channel age record")
	}
	g.log.Info().Str("channel_id", channelID).Msg("deleted expired channel")
}

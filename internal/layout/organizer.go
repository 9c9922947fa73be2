package layout

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// organizeInterval is the Organizer loop's tick period (§4.5).
const organizeInterval = 30 * time.Second

// RunOrganizer sorts the two moveable categories' channels by their
// encoded date/time every tick, moving release-guide-routed channels that
// have not yet been parented into the category, until ctx is cancelled.
func (g *Guardian) RunOrganizer(ctx context.Context) error {
	ticker := time.NewTicker(organizeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.Organize(ctx)
		}
	}
}

// Organize runs a single organizer pass, usable both by the ticking loop and
// the control plane's one-shot "organize_channels" command.
func (g *Guardian) Organize(ctx context.Context) {
	cfg := g.snapshot.Load()

	if cfg.ReleaseGuidesCategoryID != "" {
		g.adoptReleaseGuideChannels(ctx, cfg.ReleaseGuidesCategoryID)
		g.sortCategory(ctx, cfg.ReleaseGuidesCategoryID, func(year int) func(name string) (int, bool) {
			return func(name string) (int, bool) {
				d, ok := ParseReleaseDate(name, year)
				if !ok {
					return 0, false
				}
				return int(d.Unix()), true
			}
		}(time.Now().Year()))
	}

	if cfg.DailyScheduleCategoryID != "" {
		g.sortCategory(ctx, cfg.DailyScheduleCategoryID, func(name string) (int, bool) {
			return ParseDailyHour(name)
		})
	}
}

// adoptReleaseGuideChannels moves every channel the Routing Store has
// provisioned under the "release-guides" route namespace into the Release
// Guides category when it has not already been parented there, covering
// channels the Republisher created uncategorized before this category
// existed or before the mapping was configured.
func (g *Guardian) adoptReleaseGuideChannels(ctx context.Context, categoryID string) {
	routes, err := g.store.AllRouteChannels(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to list route channels for adoption sweep")
		return
	}

	for routeKey, channelID := range routes {
		if !strings.HasPrefix(routeKey, "release-guides-[") {
			continue
		}
		ch, err := g.dg.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			continue
		}
		if ch.ParentID == categoryID {
			continue
		}
		if _, err := g.dg.ChannelEditComplex(channelID, &discordgo.ChannelEdit{ParentID: categoryID}, discordgo.WithContext(ctx)); err != nil {
			g.log.Warn().Err(err).Str("channel_id", channelID).Msg("failed to adopt channel into release guides category")
		}
	}
}

type sortableChannel struct {
	id       string
	position int
	key      int
	hasKey   bool
}

// sortCategory reorders categoryID's channels by keyFn ascending, with
// unparseable names pushed to the bottom, skipping the edit entirely when
// the current order already matches.
func (g *Guardian) sortCategory(ctx context.Context, categoryID string, keyFn func(name string) (int, bool)) {
	channels, err := g.dg.GuildChannels(g.snapshot.Load().DestinationServer, discordgo.WithContext(ctx))
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to list destination channels for organizer pass")
		return
	}

	var members []sortableChannel
	for _, ch := range channels {
		if ch.ParentID != categoryID || ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		key, ok := keyFn(ch.Name)
		members = append(members, sortableChannel{id: ch.ID, position: ch.Position, key: key, hasKey: ok})
	}

	want := make([]sortableChannel, len(members))
	copy(want, members)
	sort.SliceStable(want, func(i, j int) bool {
		if want[i].hasKey != want[j].hasKey {
			return want[i].hasKey
		}
		if want[i].hasKey {
			return want[i].key < want[j].key
		}
		return false
	})

	alreadyOrdered := true
	for i := range members {
		if members[i].id != want[i].id {
			alreadyOrdered = false
			break
		}
	}
	if alreadyOrdered {
		return
	}

	for i, m := range want {
		if m.position == i {
			continue
		}
		if _, err := g.dg.ChannelEditComplex(m.id, &discordgo.ChannelEdit{Position: &i}, discordgo.WithContext(ctx)); err != nil {
			g.log.Warn().Err(err).Str("channel_id", m.id).Msg("failed to reposition channel")
		}
	}
}

package collector

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/message"
)

// pollInterval is how often the watcher re-fetches each watched guild's
// channel listing (§4.1's "deleted-channel watcher").
const pollInterval = 10 * time.Second

var timeOrDatePattern = regexp.MustCompile(`(?i)\b\d{1,2}[-/]\d{1,2}\b|\b\d{1,2}(am|pm)\b`)

// DeletedChannelEvent is emitted when a registered channel disappears from
// its guild's channel listing, so the republisher can remove the mirrored
// destination channel.
type DeletedChannelEvent struct {
	ServerID, ServerName   string
	ChannelID, ChannelName string
}

// DeletedChannelWatcher periodically re-lists each guild's channels and
// reports any previously-seen channel whose id has disappeared.
type DeletedChannelWatcher struct {
	dg       *discordgo.Session
	guildIDs []string
	log      zerolog.Logger

	mu       sync.Mutex
	tracked  map[string]trackedChannel // channel id -> info
}

type trackedChannel struct {
	serverID, serverName, name string
}

// NewDeletedChannelWatcher builds a watcher over the given guilds, using dg
// for REST channel listings.
func NewDeletedChannelWatcher(dg *discordgo.Session, guildIDs []string, logger zerolog.Logger) *DeletedChannelWatcher {
	return &DeletedChannelWatcher{
		dg:       dg,
		guildIDs: guildIDs,
		log:      logger.With().Str("component", "collector.deletedwatch").Logger(),
		tracked:  make(map[string]trackedChannel),
	}
}

// Run polls until ctx is cancelled, sending a DeletedChannelEvent on events
// for every channel that vanished since the previous poll.
func (w *DeletedChannelWatcher) Run(ctx context.Context, events chan<- DeletedChannelEvent) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx, events)
		}
	}
}

func (w *DeletedChannelWatcher) poll(ctx context.Context, events chan<- DeletedChannelEvent) {
	for _, guildID := range w.guildIDs {
		channels, err := w.dg.GuildChannels(guildID)
		if err != nil {
			w.log.Warn().Err(err).Str("guild_id", guildID).Msg("failed to list guild channels")
			continue
		}

		guild, _ := w.dg.State.Guild(guildID)
		serverName := guildID
		if guild != nil {
			serverName = guild.Name
		}

		current := make(map[string]bool, len(channels))
		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			current[ch.ID] = true
			if timeOrDatePattern.MatchString(ch.Name) {
				w.track(ch.ID, guildID, serverName, ch.Name)
			}
		}

		w.reportMissing(guildID, current, events)
	}
}

// ToNormalized converts a DeletedChannelEvent into the delete_channel
// variant of the normalized envelope, using ev.ChannelID as the source
// channel id the republisher's channel_monitoring reverse index resolves.
func (ev DeletedChannelEvent) ToNormalized() message.Normalized {
	return message.Normalized{
		MessageType:     message.TypeDeleteChannel,
		ChannelID:       ev.ChannelID,
		ServerID:        ev.ServerID,
		ChannelRealName: ev.ChannelName,
		ServerRealName:  ev.ServerName,
	}
}

func (w *DeletedChannelWatcher) track(channelID, serverID, serverName, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[channelID] = trackedChannel{serverID: serverID, serverName: serverName, name: name}
}

func (w *DeletedChannelWatcher) reportMissing(guildID string, current map[string]bool, events chan<- DeletedChannelEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, info := range w.tracked {
		if info.serverID != guildID {
			continue
		}
		if current[id] {
			continue
		}
		events <- DeletedChannelEvent{
			ServerID:    info.serverID,
			ServerName:  info.serverName,
			ChannelID:   id,
			ChannelName: info.name,
		}
		delete(w.tracked, id)
	}
}

// Package controlplane implements the operator command registry from
// spec §4.7: ping/help/status/debug/servers, block/unblock/listblocked,
// protect/unprotect/listprotected, dmstats/dmfilters, update,
// capture_layout, and organize_channels. Every mutation goes through the
// config file so the Config Watcher picks it up for every live collector.
package controlplane

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/layout"
	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

// version is reported by the `update` command's embed.
const version = "1.0.0"

// layoutCaptureDir is where `/capture_layout` writes its snapshot files.
const layoutCaptureDir = "./layout_captures"

// Handler runs a single named command and returns the text response to post
// back into the invoking channel.
type Handler func(ctx context.Context, c *CommandContext) (string, error)

// CommandContext carries everything a Handler needs: the raw argument
// tokens after the command name, and the channel the command was invoked
// in (for commands like `debug` that report on their own channel).
type CommandContext struct {
	Args      []string
	ChannelID string
	GuildID   string
}

// Registry dispatches command-prefixed messages the republisher's bot
// session receives in the destination guild to named handlers, mirroring
// the teacher's registerRoutes enumeration style adapted from HTTP routes
// to command names.
type Registry struct {
	prefix     string
	configPath string
	snapshot   *config.Snapshot
	dg         *discordgo.Session
	store      *routingstore.Store
	guardian   *layout.Guardian
	log        zerolog.Logger

	// configMu serializes config-file mutations across concurrently
	// dispatched commands (§5's "single-writer" config policy).
	configMu sync.Mutex

	handlers map[string]Handler
}

// New builds a Registry with every command from §4.7 wired in.
func New(prefix, configPath string, snapshot *config.Snapshot, dg *discordgo.Session, store *routingstore.Store, guardian *layout.Guardian, logger zerolog.Logger) *Registry {
	r := &Registry{
		prefix:     prefix,
		configPath: configPath,
		snapshot:   snapshot,
		dg:         dg,
		store:      store,
		guardian:   guardian,
		log:        logger.With().Str("component", "controlplane").Logger(),
	}
	r.handlers = map[string]Handler{
		"ping":           r.cmdPing,
		"help":           r.cmdHelp,
		"status":         r.cmdStatus,
		"debug":          r.cmdDebug,
		"servers":        r.cmdServers,
		"block":          r.cmdBlock,
		"unblock":        r.cmdUnblock,
		"listblocked":    r.cmdListBlocked,
		"protect":        r.cmdProtect,
		"unprotect":      r.cmdUnprotect,
		"listprotected":  r.cmdListProtected,
		"dmstats":        r.cmdDMStats,
		"dmfilters":      r.cmdDMFilters,
		"update":         r.cmdUpdate,
		"capture_layout": r.cmdCaptureLayout,
		"organize_channels": r.cmdOrganizeChannels,
	}
	return r
}

// Handle is a discordgo MessageCreate handler: it recognizes
// prefix-prepended commands in the destination guild and dispatches them,
// ignoring everything else (including the republisher's own webhook
// echoes, which never carry the prefix).
func (r *Registry) Handle(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.WebhookID != "" {
		return
	}
	if !strings.HasPrefix(m.Content, r.prefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, r.prefix))
	if len(fields) == 0 {
		return
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	handler, ok := r.handlers[name]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply, err := handler(ctx, &CommandContext{Args: args, ChannelID: m.ChannelID, GuildID: m.GuildID})
	if err != nil {
		r.log.Warn().Err(err).Str("command", name).Msg("command handler failed")
		reply = "error: " + err.Error()
	}
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply, discordgo.WithContext(ctx)); err != nil {
		r.log.Warn().Err(err).Str("command", name).Msg("failed to send command reply")
	}
}

func (r *Registry) cmdPing(_ context.Context, _ *CommandContext) (string, error) {
	return "pong", nil
}

func (r *Registry) cmdHelp(_ context.Context, _ *CommandContext) (string, error) {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return "available commands: " + strings.Join(names, ", "), nil
}

func (r *Registry) cmdStatus(_ context.Context, _ *CommandContext) (string, error) {
	cfg := r.snapshot.Load()
	active, failed := 0, 0
	for _, t := range cfg.Tokens {
		switch t.Status {
		case config.StatusFailed:
			failed++
		default:
			active++
		}
	}
	return fmt.Sprintf("tokens: %d active, %d failed, destination=%s", active, failed, cfg.DestinationServer), nil
}

func (r *Registry) cmdDebug(_ context.Context, c *CommandContext) (string, error) {
	return fmt.Sprintf("channel_id=%s guild_id=%s", c.ChannelID, c.GuildID), nil
}

func (r *Registry) cmdServers(_ context.Context, _ *CommandContext) (string, error) {
	cfg := r.snapshot.Load()
	seen := make(map[string]bool)
	var ids []string
	for _, t := range cfg.Tokens {
		for _, s := range t.Servers {
			if !seen[s.ServerID] {
				seen[s.ServerID] = true
				ids = append(ids, s.ServerID)
			}
		}
	}
	if len(ids) == 0 {
		return "no monitored servers", nil
	}
	return "monitored servers: " + strings.Join(ids, ", "), nil
}

// cmdBlock expects "block <server_id> <channel_or_category_id>" and adds
// the id to that server's excluded_channels across every token watching it.
func (r *Registry) cmdBlock(_ context.Context, c *CommandContext) (string, error) {
	if len(c.Args) < 2 {
		return "usage: block <server_id> <channel_id>", nil
	}
	serverID, targetID := c.Args[0], c.Args[1]

	return r.mutateConfig(func(cfg *config.Config) string {
		changed := false
		for ti := range cfg.Tokens {
			for si := range cfg.Tokens[ti].Servers {
				srv := &cfg.Tokens[ti].Servers[si]
				if srv.ServerID != serverID {
					continue
				}
				if !containsString(srv.ExcludedChannels, targetID) {
					srv.ExcludedChannels = append(srv.ExcludedChannels, targetID)
					changed = true
				}
			}
		}
		if !changed {
			return "no matching server/token found, or already blocked"
		}
		return "blocked " + targetID + " on server " + serverID
	})
}

func (r *Registry) cmdUnblock(_ context.Context, c *CommandContext) (string, error) {
	if len(c.Args) < 2 {
		return "usage: unblock <server_id> <channel_id>", nil
	}
	serverID, targetID := c.Args[0], c.Args[1]

	return r.mutateConfig(func(cfg *config.Config) string {
		changed := false
		for ti := range cfg.Tokens {
			for si := range cfg.Tokens[ti].Servers {
				srv := &cfg.Tokens[ti].Servers[si]
				if srv.ServerID != serverID {
					continue
				}
				if idx := indexOfString(srv.ExcludedChannels, targetID); idx >= 0 {
					srv.ExcludedChannels = append(srv.ExcludedChannels[:idx], srv.ExcludedChannels[idx+1:]...)
					changed = true
				}
			}
		}
		if !changed {
			return "no matching block found"
		}
		return "unblocked " + targetID + " on server " + serverID
	})
}

func (r *Registry) cmdListBlocked(_ context.Context, _ *CommandContext) (string, error) {
	cfg := r.snapshot.Load()
	var lines []string
	for _, t := range cfg.Tokens {
		for _, s := range t.Servers {
			for _, ch := range s.ExcludedChannels {
				lines = append(lines, s.ServerID+"/"+ch)
			}
		}
	}
	if len(lines) == 0 {
		return "no blocked channels", nil
	}
	return "blocked: " + strings.Join(lines, ", "), nil
}

func (r *Registry) cmdProtect(_ context.Context, c *CommandContext) (string, error) {
	if len(c.Args) < 1 {
		return "usage: protect <channel_id>", nil
	}
	channelID := c.Args[0]
	return r.mutateConfig(func(cfg *config.Config) string {
		if containsString(cfg.ProtectedChannels, channelID) {
			return channelID + " is already protected"
		}
		cfg.ProtectedChannels = append(cfg.ProtectedChannels, channelID)
		return "protected " + channelID
	})
}

func (r *Registry) cmdUnprotect(_ context.Context, c *CommandContext) (string, error) {
	if len(c.Args) < 1 {
		return "usage: unprotect <channel_id>", nil
	}
	channelID := c.Args[0]
	return r.mutateConfig(func(cfg *config.Config) string {
		idx := indexOfString(cfg.ProtectedChannels, channelID)
		if idx < 0 {
			return channelID + " was not protected"
		}
		cfg.ProtectedChannels = append(cfg.ProtectedChannels[:idx], cfg.ProtectedChannels[idx+1:]...)
		return "unprotected " + channelID
	})
}

func (r *Registry) cmdListProtected(_ context.Context, _ *CommandContext) (string, error) {
	cfg := r.snapshot.Load()
	if len(cfg.ProtectedChannels) == 0 {
		return "no protected channels", nil
	}
	return "protected: " + strings.Join(cfg.ProtectedChannels, ", "), nil
}

func (r *Registry) cmdDMStats(ctx context.Context, _ *CommandContext) (string, error) {
	instances, err := r.store.BotInstances(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("live bot instances: %d", len(instances)), nil
}

func (r *Registry) cmdDMFilters(_ context.Context, _ *CommandContext) (string, error) {
	return "dm filter thresholds: keyword_matches>=2, url_count>1, emoji_count>10, content_length>500 (any of these rejects a non-mutual-guild dm)", nil
}

func (r *Registry) cmdUpdate(ctx context.Context, _ *CommandContext) (string, error) {
	cfg := r.snapshot.Load()
	if cfg.UpdatesChannelID == "" {
		return "no updates_channel_id configured", nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       "1Tap Notify update",
		Description: "version " + version,
	}
	if _, err := r.dg.ChannelMessageSendEmbed(cfg.UpdatesChannelID, embed, discordgo.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("post update embed: %w", err)
	}
	return "posted update embed", nil
}

func (r *Registry) cmdCaptureLayout(ctx context.Context, c *CommandContext) (string, error) {
	guildID := c.GuildID
	if guildID == "" {
		guildID = r.snapshot.Load().DestinationServer
	}
	if _, err := layout.CaptureLayout(ctx, r.dg, guildID, layoutCaptureDir); err != nil {
		return "", err
	}
	return "layout captured for " + guildID, nil
}

func (r *Registry) cmdOrganizeChannels(ctx context.Context, _ *CommandContext) (string, error) {
	r.guardian.Organize(ctx)
	return "organizer pass complete", nil
}

// mutateConfig serializes a read-modify-write of the config file: it loads
// the current snapshot, applies mutate, saves to disk, and
// republishes the snapshot so the Config Watcher's next fsnotify event is a
// no-op reload of what this command already applied in-process.
func (r *Registry) mutateConfig(mutate func(cfg *config.Config) string) (string, error) {
	r.configMu.Lock()
	defer r.configMu.Unlock()

	cfg := r.snapshot.Load()
	clone := *cfg
	clone.Tokens = append([]config.Token(nil), cfg.Tokens...)
	for i := range clone.Tokens {
		clone.Tokens[i].Servers = append([]config.MonitoredServer(nil), cfg.Tokens[i].Servers...)
	}
	clone.ProtectedChannels = append([]string(nil), cfg.ProtectedChannels...)

	result := mutate(&clone)

	if err := config.Save(r.configPath, &clone); err != nil {
		return "", err
	}
	r.snapshot.Store(&clone)
	return result, nil
}

func containsString(list []string, target string) bool {
	return indexOfString(list, target) >= 0
}

func indexOfString(list []string, target string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return -1
}

package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
)

// CapturedChannel is one channel's position within a captured category or
// the uncategorized list.
type CapturedChannel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// CapturedCategory is one category's metadata and channel membership at
// capture time.
type CapturedCategory struct {
	Name     string            `json:"name"`
	Position int               `json:"position"`
	Channels []CapturedChannel `json:"channels"`
}

// Snapshot is the `/capture_layout` artifact (§4.5): a point-in-time record
// of the destination guild's structure, kept only as an operator reference.
// The Layout Guardian's loops never read it back.
type Snapshot struct {
	ServerID              string                      `json:"server_id"`
	Categories            map[string]CapturedCategory `json:"categories"`
	UncategorizedChannels []CapturedChannel           `json:"uncategorized_channels"`
}

// CaptureLayout builds a Snapshot of guildID's current structure and writes
// it to dir/<guildID>.json.
func CaptureLayout(ctx context.Context, dg *discordgo.Session, guildID, dir string) (Snapshot, error) {
	channels, err := dg.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return Snapshot{}, fmt.Errorf("list guild channels: %w", err)
	}

	snap := Snapshot{ServerID: guildID, Categories: make(map[string]CapturedCategory)}

	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory {
			snap.Categories[ch.ID] = CapturedCategory{Name: ch.Name, Position: ch.Position}
		}
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory {
			continue
		}
		member := CapturedChannel{ID: ch.ID, Name: ch.Name, Position: ch.Position}
		if ch.ParentID == "" {
			snap.UncategorizedChannels = append(snap.UncategorizedChannels, member)
			continue
		}
		cat, ok := snap.Categories[ch.ParentID]
		if !ok {
			snap.UncategorizedChannels = append(snap.UncategorizedChannels, member)
			continue
		}
		cat.Channels = append(cat.Channels, member)
		snap.Categories[ch.ParentID] = cat
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("create capture directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal layout snapshot: %w", err)
	}

	path := filepath.Join(dir, guildID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Snapshot{}, fmt.Errorf("write layout snapshot: %w", err)
	}

	return snap, nil
}

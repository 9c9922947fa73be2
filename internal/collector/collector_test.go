package collector

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/1TapDev/1Tap-Notify/internal/config"
)

func stateWithGuilds(t *testing.T, authorID string, guildIDs ...string) *discordgo.State {
	t.Helper()
	st := discordgo.NewState()
	for _, id := range guildIDs {
		if err := st.GuildAdd(&discordgo.Guild{ID: id}); err != nil {
			t.Fatalf("GuildAdd(%s): %v", id, err)
		}
		if err := st.MemberAdd(&discordgo.Member{GuildID: id, User: &discordgo.User{ID: authorID}}); err != nil {
			t.Fatalf("MemberAdd(%s): %v", id, err)
		}
	}
	return st
}

func TestMutualGuildCount(t *testing.T) {
	t.Parallel()

	dg := &discordgo.Session{State: stateWithGuilds(t, "author-1", "g1", "g2")}
	if got := mutualGuildCount(dg, "author-1"); got != 2 {
		t.Errorf("mutualGuildCount() = %d, want 2", got)
	}
	if got := mutualGuildCount(dg, "stranger"); got != 0 {
		t.Errorf("mutualGuildCount(stranger) = %d, want 0", got)
	}
	if got := mutualGuildCount(&discordgo.Session{}, "author-1"); got != 0 {
		t.Errorf("mutualGuildCount(nil state) = %d, want 0", got)
	}
}

// TestBuildDM calls buildDM, the function onMessageCreate uses for direct
// messages, so the allow-listed-bot and mutual-guild-count branches of
// EligibleDM are reached through the collector's wiring, not just the pure
// function directly.
func TestBuildDM(t *testing.T) {
	t.Parallel()

	c := &Collector{log: noopLogger()}
	enabled := &config.Token{DMMirroring: config.DMMirroring{Enabled: true}}

	t.Run("allow-listed bot bypasses mutual-guild check", func(t *testing.T) {
		t.Parallel()
		dg := &discordgo.Session{State: discordgo.NewState()}
		m := &discordgo.MessageCreate{Message: &discordgo.Message{
			ID:      "m1",
			Author:  &discordgo.User{ID: "bot-1", Username: "ZebraCheckBot", GlobalName: "Zebra Check", Bot: true},
			Content: "restock alert",
		}}
		_, ok := c.buildDM(dg, enabled, "self", m)
		if !ok {
			t.Error("expected allow-listed bot DM to be accepted")
		}
	})

	t.Run("non-bot sender with real mutual guild overlap is accepted", func(t *testing.T) {
		t.Parallel()
		dg := &discordgo.Session{State: stateWithGuilds(t, "peer-1", "g1", "g2")}
		m := &discordgo.MessageCreate{Message: &discordgo.Message{
			ID:      "m2",
			Author:  &discordgo.User{ID: "peer-1", Username: "peer"},
			Content: "hey, saw you around",
		}}
		_, ok := c.buildDM(dg, enabled, "self", m)
		if !ok {
			t.Error("expected DM from a peer sharing 2 mutual guilds to be accepted")
		}
	})

	t.Run("non-bot sender with no mutual guilds and spammy content is rejected", func(t *testing.T) {
		t.Parallel()
		dg := &discordgo.Session{State: discordgo.NewState()}
		m := &discordgo.MessageCreate{Message: &discordgo.Message{
			ID:      "m3",
			Author:  &discordgo.User{ID: "stranger", Username: "stranger"},
			Content: "free nitro claim your giveaway winner gift",
		}}
		_, ok := c.buildDM(dg, enabled, "self", m)
		if ok {
			t.Error("expected spammy zero-mutual-guild DM to be rejected")
		}
	})
}

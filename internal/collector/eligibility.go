// Package collector implements the per-token gateway observer: eligibility
// filtering, normalization, deduplication, and enqueue described in spec
// §4.1.
package collector

import (
	"slices"
	"strings"

	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/message"
)

// EligibleGuildMessage applies §4.1's ordered guild-message eligibility
// filter. authorID is the message author; selfID is this session's own user
// id; authorIsBot/hasAttachments/content detect automated repost bots.
func EligibleGuildMessage(tok *config.Token, serverID, categoryID, channelID, authorID, selfID string, authorIsBot, hasAttachments bool, content string) bool {
	srv, ok := findServer(tok, serverID)
	if !ok {
		return false
	}
	if categoryID != "" && slices.Contains(srv.ExcludedCategories, categoryID) {
		return false
	}
	if slices.Contains(srv.ExcludedChannels, channelID) {
		return false
	}
	if authorIsBot && hasAttachments && strings.Contains(strings.ToLower(content), "posted by") {
		return false
	}
	if authorID == selfID {
		return false
	}
	return true
}

func findServer(tok *config.Token, serverID string) (config.MonitoredServer, bool) {
	for _, s := range tok.Servers {
		if s.ServerID == serverID {
			return s, true
		}
	}
	return config.MonitoredServer{}, false
}

// EligibleDM applies §4.1's DM eligibility filter: DM mirroring must be
// enabled, the sender must not be self, and the sender must either be an
// allow-listed bot or pass the spam/friend-request filter.
func EligibleDM(tok *config.Token, selfID, senderID string, senderIsAllowListedBot bool, mutualGuildCount int, content string) bool {
	if !tok.DMMirroring.Enabled {
		return false
	}
	if senderID == selfID {
		return false
	}
	if senderIsAllowListedBot {
		return true
	}
	if mutualGuildCount == 0 {
		return !message.ClassifyDMContent(content).IsSpamDM()
	}
	return mutualGuildCount >= 2
}

// IsRepostBot matches §4.1's "automated reposts" heuristic: a bot author
// whose content mentions "posted by" and carries attachments.
func IsRepostBot(authorIsBot, hasAttachments bool, content string) bool {
	return authorIsBot && hasAttachments && strings.Contains(strings.ToLower(content), "posted by")
}

// allowedBotNames mirrors the self-bot DM allow-list: a bot whose display
// name contains one of these keywords may DM this session regardless of
// mutual-guild overlap (spec §4.1, "sender is an allow-listed bot").
var allowedBotNames = []string{
	"zebra check",
	"divine monitor",
	"divine",
	"hidden clearance bot",
	"monitor",
	"ticket tool",
	"notification",
	"alert",
	"checker",
	"1tap",
	"sneaker",
	"cook",
}

// IsAllowedBot reports whether displayName matches the allow-list above.
func IsAllowedBot(displayName string) bool {
	lower := strings.ToLower(displayName)
	for _, allowed := range allowedBotNames {
		if strings.Contains(lower, allowed) {
			return true
		}
	}
	return false
}

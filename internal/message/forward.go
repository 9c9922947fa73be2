package message

import "regexp"

var forwardPhrase = regexp.MustCompile(`(?i)(?:forwarded from|originally from)\s*:?\s*(.+)`)

// ReferenceInfo describes the message a MessageCreate event references,
// extracted by the collector from discordgo's MessageReference/Message
// types so this package stays free of the discordgo dependency.
type ReferenceInfo struct {
	Present        bool
	GuildID        string
	AuthorName     string
	HasSubstance   bool // resolved reference has content, embeds, or attachments
}

// DetectForwarded applies §4.1's ordered forwarded-message detection rules
// and returns the attributed author (or extracted subject) plus whether a
// rule matched. It stops at the first matching rule, in order:
//
//  1. a cross-guild reference (ref.GuildID != currentGuildID)
//  2. an empty message (no content/embeds/attachments) whose reference
//     resolves to a message with substance
//  3. inline text containing "forwarded from" or "originally from"
//
// A same-guild reply reference, or a cross-post/application-id reference,
// never qualifies — those are handled by reply detection instead.
func DetectForwarded(ref ReferenceInfo, currentGuildID, content string, hasEmbeds, hasAttachments bool) (attribution string, ok bool) {
	if ref.Present && ref.GuildID != "" && currentGuildID != "" && ref.GuildID != currentGuildID {
		return ref.AuthorName, true
	}

	if ref.Present && content == "" && !hasEmbeds && !hasAttachments && ref.HasSubstance {
		return ref.AuthorName, true
	}

	if m := forwardPhrase.FindStringSubmatch(content); m != nil {
		return trimSubject(m[1]), true
	}

	return "", false
}

func trimSubject(s string) string {
	runes := []rune(s)
	if len(runes) > 120 {
		runes = runes[:120]
	}
	return string(runes)
}

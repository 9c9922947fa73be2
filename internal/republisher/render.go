package republisher

import (
	"regexp"
	"strings"

	"github.com/1TapDev/1Tap-Notify/internal/message"
)

var (
	channelMentionPattern = regexp.MustCompile(`<#(\d+)>`)
	roleMentionPattern    = regexp.MustCompile(`<@&(\d+)>`)
)

// ChannelRef is what the republisher remembers about a source channel it has
// already provisioned a destination route for, so later mentions of that
// channel id can be rewritten instead of left as a raw Discord id.
type ChannelRef struct {
	ChannelName string
	ServerName  string
}

// ResolveChannelMentions rewrites every <#id> occurrence in content. When id
// is a source channel the republisher has already routed (present in
// index), it is rewritten as the literal "{server} > #{name}" form from
// §4.2, wrapped in backticks as a code span; a destination channel id is not substituted because the republisher
// cannot know the mentioning guild's view of that channel. Unknown ids are
// left untouched.
func ResolveChannelMentions(content string, index map[string]ChannelRef) string {
	return channelMentionPattern.ReplaceAllStringFunc(content, func(match string) string {
		id := channelMentionPattern.FindStringSubmatch(match)[1]
		ref, ok := index[id]
		if !ok {
			return match
		}
		return "`" + ref.ServerName + " > #" + ref.ChannelName + "`"
	})
}

// ResolveRoleMentions rewrites every <@&id> occurrence as bold plain text
// using roleNames (populated by the collector from source-guild state),
// per §4.2's rule against hitting the destination guild's role-creation
// ceiling.
func ResolveRoleMentions(content string, roleNames map[string]string) string {
	return roleMentionPattern.ReplaceAllStringFunc(content, func(match string) string {
		id := roleMentionPattern.FindStringSubmatch(match)[1]
		name, ok := roleNames[id]
		if !ok {
			name = id
		}
		return "**@" + name + "**"
	})
}

// ResolveEmbedRoleMentions rewrites role mentions inside an embed
// description, attempting to reuse an existing destination role by
// case-insensitive name match before falling back to plain "@{name}".
func ResolveEmbedRoleMentions(text string, roleNames map[string]string, destRoleByName map[string]string) string {
	return roleMentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		id := roleMentionPattern.FindStringSubmatch(match)[1]
		name, ok := roleNames[id]
		if !ok {
			name = id
		}
		if destID, ok := destRoleByName[strings.ToLower(name)]; ok {
			return "<@&" + destID + ">"
		}
		return "@" + name
	})
}

// BuildReplyHeader renders §4.2's reply prefix: the replied-to author in
// bold followed by their (already-truncated) content, block-quoted.
func BuildReplyHeader(replyTo, replyText string) string {
	var b strings.Builder
	b.WriteString("> **")
	b.WriteString(replyTo)
	b.WriteString("**\n")
	for _, line := range strings.Split(replyText, "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildForwardedHeader renders §4.2's forwarded-message prefix.
func BuildForwardedHeader(subject string) string {
	return "📤 **Forwarded from:** " + subject + "\n"
}

// RenderContent resolves mentions and prepends the reply/forwarded header
// (mutually exclusive, forwarded taking precedence, matching how the
// collector itself treats the two as alternatives) ahead of the message
// content.
func RenderContent(norm message.Normalized, index map[string]ChannelRef) string {
	content := ResolveRoleMentions(norm.Content, norm.MentionedRoles)
	content = ResolveChannelMentions(content, index)

	switch {
	case norm.IsForwarded:
		return BuildForwardedHeader(norm.ForwardedFrom) + content
	case norm.ReplyTo != "":
		return BuildReplyHeader(norm.ReplyTo, norm.ReplyText) + content
	default:
		return content
	}
}

const archiveAuthor = "Polar Helper#6493"

// IsArchiveTrigger applies §4.2's archive-trigger rule: the destination
// channel is deleted and the message suppressed rather than republished.
func IsArchiveTrigger(authorName, content string, embeds []message.Embed) bool {
	lower := strings.ToLower(content)

	if authorName == archiveAuthor {
		if strings.Contains(lower, "channel archive") {
			return true
		}
		for _, e := range embeds {
			if strings.Contains(strings.ToLower(e.Title), "channel archive") ||
				strings.Contains(strings.ToLower(e.Description), "channel archive") {
				return true
			}
		}
	}

	if lower == "!archive" || lower == "channel archive" {
		return true
	}
	return strings.Contains(lower, "archived to forum thread")
}

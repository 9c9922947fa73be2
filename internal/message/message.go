// Package message defines the normalized message envelope that flows from a
// collector session through the durable queue to the republisher, along with
// the pure (discordgo-free) transforms applied to it.
package message

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Type distinguishes a regular guild message from a direct message.
type Type string

const (
	TypeRegular       Type = "regular"
	TypeDM            Type = "dm"
	TypeDeleteChannel Type = "delete_channel"
)

// EmbedField is a single name/value pair within an Embed.
type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Embed is a normalized copy of a Discord embed, keeping only populated keys.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	ThumbURL    string       `json:"thumbnail_url,omitempty"`
	FooterText  string       `json:"footer_text,omitempty"`
	AuthorName  string       `json:"author_name,omitempty"`
}

// Normalized is the canonical payload produced by a collector and consumed by
// the republisher. It is immutable once enqueued.
type Normalized struct {
	MessageType Type      `json:"message_type"`
	MessageID   string    `json:"message_id"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	CategoryName string   `json:"category_name"`
	ServerID    string    `json:"server_id"`
	ServerName  string    `json:"server_name"`
	Content     string    `json:"content"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	AuthorAvatar string   `json:"author_avatar,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	Attachments          []string        `json:"attachments,omitempty"`
	Embeds               []Embed         `json:"embeds,omitempty"`
	MentionedRoles       map[string]string `json:"mentioned_roles,omitempty"`
	ReplyTo              string          `json:"reply_to,omitempty"`
	ReplyText            string          `json:"reply_text,omitempty"`
	ForwardedFrom        string          `json:"forwarded_from,omitempty"`
	ForwardedAttachments []string        `json:"forwarded_attachments,omitempty"`
	IsForwarded          bool            `json:"is_forwarded"`

	ChannelRealName string `json:"channel_real_name,omitempty"`
	ServerRealName  string `json:"server_real_name,omitempty"`

	// DM-only fields.
	DestinationServerID string `json:"destination_server_id,omitempty"`
	DMUserID             string `json:"dm_user_id,omitempty"`
	DMUsername           string `json:"dm_username,omitempty"`
	SelfUserID            string `json:"self_user_id,omitempty"`
	SelfUsername          string `json:"self_username,omitempty"`
	ReceivingToken        string `json:"receiving_token,omitempty"`
	SenderUserID          string `json:"sender_user_id,omitempty"`
	IsBot                 bool   `json:"is_bot,omitempty"`
	BotName               string `json:"bot_name,omitempty"`
}

// routeStripper removes the visual separators the source servers decorate
// channel/category names with before webhook-route keys are compared.
var routeStripper = strings.NewReplacer("|", "", "︱", "", "⚡", "", " ", "-")

// NormalizeKey lowercases name and rewrites it into the canonical form used as
// part of a WebhookRoute key: spaces become hyphens and the decorative glyphs
// "|", "︱", "⚡" are stripped.
func NormalizeKey(name string) string {
	return strings.ToLower(routeStripper.Replace(strings.TrimSpace(name)))
}

// RouteKey builds the WebhookRoute lookup key for a (category, server,
// channel) triple, in the "{category}-[{server}]/{channel}" form from §3.
func RouteKey(category, server, channel string) string {
	return NormalizeKey(category) + "-[" + NormalizeKey(server) + "]/" + NormalizeKey(channel)
}

const maxPartLength = 1900

// SplitContent breaks content into parts no longer than maxPartLength,
// preferring line boundaries and falling back to word boundaries when a
// single line exceeds the limit, and cutting a single word longer than the
// limit into limit-sized pieces. A content of length <= 2000 with no
// newlines still returns a single part if it fits under the 2000 raw limit,
// matching §4.2's boundary behavior.
func SplitContent(content string) []string {
	if len(content) <= 2000 {
		return []string{content}
	}

	var parts []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if len(line) > maxPartLength {
			flush()
			parts = append(parts, splitByWords(line)...)
			continue
		}
		if current.Len()+len(line)+1 > maxPartLength {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush()

	if len(parts) == 0 {
		return []string{""}
	}
	return parts
}

func splitByWords(line string) []string {
	var parts []string
	var current strings.Builder

	for _, word := range strings.Fields(line) {
		if current.Len() > 0 && current.Len()+len(word)+1 > maxPartLength {
			parts = append(parts, current.String())
			current.Reset()
		}
		for len(word) > maxPartLength {
			cut := maxPartLength
			for cut > 0 && !utf8.RuneStart(word[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxPartLength
			}
			parts = append(parts, word[:cut])
			word = word[cut:]
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

var (
	spamKeywords = []string{
		"free nitro", "steam gift", "claim your", "airdrop", "giveaway winner",
		"click here", "limited offer", "verify your account", "discord-nitro",
	}
	urlPattern   = regexp.MustCompile(`https?://\S+`)
	emojiPattern = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]`)
)

// DMSpamSignal counts the heuristics §4.1 uses to classify an unsolicited DM
// from a non-bot, non-mutual-guild sender as spam.
type DMSpamSignal struct {
	KeywordMatches int
	URLCount       int
	EmojiCount     int
	ContentLength  int
}

// ClassifyDMContent inspects content and returns the raw signal counts used
// by IsSpamDM.
func ClassifyDMContent(content string) DMSpamSignal {
	lower := strings.ToLower(content)
	matches := 0
	for _, kw := range spamKeywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	return DMSpamSignal{
		KeywordMatches: matches,
		URLCount:       len(urlPattern.FindAllString(content, -1)),
		EmojiCount:     len(emojiPattern.FindAllString(content, -1)),
		ContentLength:  len(content),
	}
}

// IsSpamDM applies §4.1's rejection thresholds to a signal computed over a
// DM from a peer sharing zero monitored guilds.
func (s DMSpamSignal) IsSpamDM() bool {
	return s.KeywordMatches >= 2 || s.URLCount > 1 || s.EmojiCount > 10 || s.ContentLength > 500
}

// DisplayName picks the first non-empty of globalName, nick, username per
// §4.1's normalization rule, stripping a legacy "#0" discriminator suffix.
func DisplayName(globalName, nick, username string) string {
	for _, candidate := range []string{globalName, nick, username} {
		if candidate != "" {
			return strings.TrimSuffix(candidate, "#0")
		}
	}
	return ""
}

// TruncateReplyText trims text to the first 180 characters, per §4.1.
func TruncateReplyText(text string) string {
	runes := []rune(text)
	if len(runes) <= 180 {
		return text
	}
	return string(runes[:180])
}

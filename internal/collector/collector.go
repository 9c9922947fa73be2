package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/gatewayclient"
	"github.com/1TapDev/1Tap-Notify/internal/message"
	"github.com/1TapDev/1Tap-Notify/internal/queue"
	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

// Collector observes one token's gateway session, filters and normalizes
// every eligible message, and enqueues it for the republisher (§4.1).
type Collector struct {
	snapshot  *config.Snapshot
	store     *routingstore.Store
	q         *queue.Queue
	dedup     *dedupCache
	log       zerolog.Logger
	httpPoster string // republisher's /process_message URL; empty disables the dual HTTP path
	httpClient *http.Client
}

// New creates a Collector that reads MonitoredServer/Token rules from
// snapshot, durably enqueues to q, mirrors to the Routing Store, and
// additionally best-effort POSTs to the republisher's HTTP endpoint.
func New(snapshot *config.Snapshot, store *routingstore.Store, q *queue.Queue, httpPoster string, logger zerolog.Logger) *Collector {
	return &Collector{
		snapshot:   snapshot,
		store:      store,
		q:          q,
		dedup:      newDedupCache(),
		log:        logger.With().Str("component", "collector").Logger(),
		httpPoster: httpPoster,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Handler returns a gatewayclient.Handler bound to this Collector, suitable
// for passing to gatewayclient.New.
func (c *Collector) Handler() gatewayclient.Handler {
	return c.onMessageCreate
}

func (c *Collector) onMessageCreate(session *gatewayclient.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := c.snapshot.Load()
	tok, ok := cfg.TokenByValue(session.TokenValue)
	if !ok || tok.Disabled || tok.Status == config.StatusFailed {
		return
	}

	dg := session.Discord()
	selfID := ""
	if dg.State != nil && dg.State.User != nil {
		selfID = dg.State.User.ID
	}

	var norm message.Normalized
	if m.GuildID == "" {
		norm, ok = c.buildDM(dg, tok, selfID, m)
	} else {
		norm, ok = c.buildGuildMessage(dg, tok, selfID, m)
	}
	if !ok {
		return
	}

	if seen, err := c.store.MarkSeen(ctx, norm.MessageID); err != nil {
		c.log.Warn().Err(err).Msg("dedup check against routing store failed, continuing optimistically")
	} else if seen {
		return
	}
	if c.dedup.SeenOrAdd(norm.MessageID) {
		return
	}

	if err := c.q.Push(ctx, norm); err != nil {
		c.log.Error().Err(err).Str("message_id", norm.MessageID).Msg("failed to enqueue message")
	}
	c.postHTTP(ctx, norm)
}

func (c *Collector) buildGuildMessage(dg *discordgo.Session, tok *config.Token, selfID string, m *discordgo.MessageCreate) (message.Normalized, bool) {
	channel, err := dg.State.Channel(m.ChannelID)
	if err != nil || channel == nil {
		channel, err = dg.Channel(m.ChannelID)
		if err != nil {
			c.log.Warn().Err(err).Str("channel_id", m.ChannelID).Msg("failed to resolve channel")
			return message.Normalized{}, false
		}
	}

	categoryID := channel.ParentID
	categoryName := "uncategorized"
	if categoryID != "" {
		if cat, err := dg.State.Channel(categoryID); err == nil && cat != nil {
			categoryName = cat.Name
		} else if cat, err := dg.Channel(categoryID); err == nil && cat != nil {
			categoryName = cat.Name
		}
	}

	content := m.ContentWithMentionsReplaced()
	hasAttachments := len(m.Attachments) > 0

	if !EligibleGuildMessage(tok, m.GuildID, categoryID, m.ChannelID, m.Author.ID, selfID, m.Author.Bot, hasAttachments, content) {
		return message.Normalized{}, false
	}

	guild, _ := dg.State.Guild(m.GuildID)
	serverName := m.GuildID
	if guild != nil {
		serverName = guild.Name
	}

	norm := message.Normalized{
		MessageType:  message.TypeRegular,
		MessageID:    m.ID,
		ChannelID:    m.ChannelID,
		ChannelName:  channel.Name,
		CategoryName: categoryName,
		ServerID:     m.GuildID,
		ServerName:   serverName,
		Content:      content,
		AuthorID:     m.Author.ID,
		AuthorName:   message.DisplayName(memberGlobalName(m.Member), memberNick(m.Member), m.Author.Username),
		AuthorAvatar: m.Author.AvatarURL(""),
		Timestamp:    m.Timestamp,
	}

	for _, a := range m.Attachments {
		norm.Attachments = append(norm.Attachments, a.URL)
	}
	norm.Embeds = convertEmbeds(m.Embeds)
	norm.MentionedRoles = mentionedRoleNames(dg, m.GuildID, m.MentionRoles)

	ref := discordgoReference(m)
	if attribution, ok := message.DetectForwarded(ref, m.GuildID, m.Content, len(m.Embeds) > 0, hasAttachments); ok {
		norm.IsForwarded = true
		norm.ForwardedFrom = attribution
	} else if m.MessageReference != nil && m.ReferencedMessage != nil {
		norm.ReplyTo = message.DisplayName(memberGlobalName(m.ReferencedMessage.Member), memberNick(m.ReferencedMessage.Member), m.ReferencedMessage.Author.Username)
		norm.ReplyText = message.TruncateReplyText(m.ReferencedMessage.Content)
	}

	return norm, true
}

func (c *Collector) buildDM(dg *discordgo.Session, tok *config.Token, selfID string, m *discordgo.MessageCreate) (message.Normalized, bool) {
	authorDisplayName := message.DisplayName(m.Author.GlobalName, "", m.Author.Username)
	allowListedBot := m.Author.Bot && IsAllowedBot(authorDisplayName)
	mutual := mutualGuildCount(dg, m.Author.ID)

	if !EligibleDM(tok, selfID, m.Author.ID, allowListedBot, mutual, m.Content) {
		return message.Normalized{}, false
	}

	norm := message.Normalized{
		MessageType:          message.TypeDM,
		MessageID:            m.ID,
		ChannelID:            m.ChannelID,
		Content:              m.Content,
		AuthorID:             m.Author.ID,
		AuthorName:           m.Author.Username,
		Timestamp:            m.Timestamp,
		DestinationServerID:  tok.DMMirroring.DestinationServer,
		DMUserID:             m.Author.ID,
		DMUsername:           m.Author.Username,
		SelfUserID:           selfID,
		ReceivingToken:       tok.Token,
		SenderUserID:         m.Author.ID,
		IsBot:                m.Author.Bot,
	}
	for _, a := range m.Attachments {
		norm.Attachments = append(norm.Attachments, a.URL)
	}
	norm.Embeds = convertEmbeds(m.Embeds)
	if norm.Content == "" && len(norm.Embeds) == 0 && len(norm.Attachments) > 0 {
		norm.Embeds = []message.Embed{{ImageURL: norm.Attachments[0]}}
	}

	return norm, true
}

func (c *Collector) postHTTP(ctx context.Context, norm message.Normalized) {
	if c.httpPoster == "" {
		return
	}

	data, err := json.Marshal(norm)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal message for http dual path")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpPoster, bytes.NewReader(data))
	if err != nil {
		c.log.Error().Err(err).Msg("failed to build http dual-path request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("http dual-path post failed, queue delivery still attempted")
		return
	}
	defer func() { _ = resp.Body.Close() }()
}

func convertEmbeds(embeds []*discordgo.MessageEmbed) []message.Embed {
	out := make([]message.Embed, 0, len(embeds))
	for _, e := range embeds {
		if e == nil {
			continue
		}
		em := message.Embed{Title: e.Title, Description: e.Description, URL: e.URL, Color: e.Color}
		if e.Image != nil {
			em.ImageURL = e.Image.URL
		}
		if e.Thumbnail != nil {
			em.ThumbURL = e.Thumbnail.URL
		}
		if e.Footer != nil {
			em.FooterText = e.Footer.Text
		}
		if e.Author != nil {
			em.AuthorName = e.Author.Name
		}
		for _, f := range e.Fields {
			if f == nil {
				continue
			}
			em.Fields = append(em.Fields, message.EmbedField{Name: f.Name, Value: f.Value})
		}
		out = append(out, em)
	}
	return out
}

// mentionedRoleNames resolves each mentioned role id to its source-guild
// name. The collector holds state for the guild it observed the message in,
// so resolution happens here rather than in the republisher, which only
// holds state for the destination guild.
func mentionedRoleNames(dg *discordgo.Session, guildID string, roleIDs []string) map[string]string {
	if len(roleIDs) == 0 {
		return nil
	}
	out := make(map[string]string, len(roleIDs))
	for _, roleID := range roleIDs {
		name := roleID
		if role, err := dg.State.Role(guildID, roleID); err == nil && role != nil {
			name = role.Name
		}
		out[roleID] = name
	}
	return out
}

// mutualGuildCount counts guilds this session shares with authorID.
// discordgo has no direct mutual_guilds accessor; we approximate it by
// checking the member cache of every guild this session's state knows
// about (§4.1's DM spam/friend-request filter).
func mutualGuildCount(dg *discordgo.Session, authorID string) int {
	if dg == nil || dg.State == nil {
		return 0
	}
	count := 0
	for _, g := range dg.State.Guilds {
		if _, err := dg.State.Member(g.ID, authorID); err == nil {
			count++
		}
	}
	return count
}

func memberGlobalName(member *discordgo.Member) string {
	if member == nil || member.User == nil {
		return ""
	}
	return member.User.GlobalName
}

func memberNick(member *discordgo.Member) string {
	if member == nil {
		return ""
	}
	return member.Nick
}

func discordgoReference(m *discordgo.MessageCreate) message.ReferenceInfo {
	if m.MessageReference == nil {
		return message.ReferenceInfo{}
	}
	ref := message.ReferenceInfo{Present: true, GuildID: m.MessageReference.GuildID}
	if m.ReferencedMessage != nil {
		if m.ReferencedMessage.Author != nil {
			ref.AuthorName = message.DisplayName(memberGlobalName(m.ReferencedMessage.Member), memberNick(m.ReferencedMessage.Member), m.ReferencedMessage.Author.Username)
		}
		ref.HasSubstance = m.ReferencedMessage.Content != "" || len(m.ReferencedMessage.Embeds) > 0 || len(m.ReferencedMessage.Attachments) > 0
	}
	return ref
}

package republisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/attachment"
	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/dmrelay"
	"github.com/1TapDev/1Tap-Notify/internal/message"
	"github.com/1TapDev/1Tap-Notify/internal/queue"
	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

// popTimeout bounds each blocking queue pop so the processor's loop can
// still observe context cancellation promptly during graceful shutdown.
const popTimeout = 5 * time.Second

// logBatchEvery reports the running processed-message count at this cadence
// (§4.2: "periodically log the batch processed count").
const logBatchEvery = 100

// maxPartAttempts bounds retries of a single rendered content part against
// the webhook execution contract (§4.2/§7).
const maxPartAttempts = 3

// Processor drains the durable queue and republishes each NormalizedMessage
// through its resolved webhook route (§4.2).
type Processor struct {
	dg        *discordgo.Session
	q         *queue.Queue
	store     *routingstore.Store
	resolver  *RouteResolver
	webhook   *WebhookClient
	attach    *attachment.Pool
	dmInbound *dmrelay.Inbound
	snapshot  *config.Snapshot
	dedup     *dedupCache
	log       zerolog.Logger

	mu           sync.Mutex
	channelIndex map[string]ChannelRef // source channel id -> name/server, for mention rewriting
	archived     map[string]struct{}   // destination channel ids suppressed by the archive trigger
	roleCache    map[string]string     // destination guild role name (lowercase) -> id

	processed int64
}

// NewProcessor wires a Processor against an already-connected destination
// guild session and its supporting stores.
func NewProcessor(dg *discordgo.Session, q *queue.Queue, store *routingstore.Store, resolver *RouteResolver, snapshot *config.Snapshot, logger zerolog.Logger) *Processor {
	return &Processor{
		dg:           dg,
		q:            q,
		store:        store,
		resolver:     resolver,
		webhook:      NewWebhookClient(),
		attach:       attachment.NewPool(4),
		dmInbound:    dmrelay.NewInbound(dg, store, logger),
		snapshot:     snapshot,
		dedup:        newDedupCache(),
		log:          logger.With().Str("component", "republisher.process").Logger(),
		channelIndex: make(map[string]ChannelRef),
		archived:     make(map[string]struct{}),
		roleCache:    make(map[string]string),
	}
}

// Run drains the queue until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := p.q.Pop(ctx, popTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn().Err(err).Msg("failed to pop from queue, retrying")
			time.Sleep(time.Second)
			continue
		}

		p.handleRaw(ctx, raw)
	}
}

func (p *Processor) handleRaw(ctx context.Context, raw []byte) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		p.log.Warn().Err(err).Msg("dropping malformed queue payload")
		return
	}
	if _, ok := probe.(map[string]any); !ok {
		p.log.Warn().Msg("dropping non-object queue payload")
		return
	}

	var norm message.Normalized
	if err := json.Unmarshal(raw, &norm); err != nil {
		p.log.Warn().Err(err).Msg("dropping unparseable normalized message")
		return
	}

	if norm.MessageType != message.TypeDeleteChannel {
		if seen, err := p.store.MarkSeen(ctx, norm.MessageID); err != nil {
			p.log.Warn().Err(err).Msg("dedup check against routing store failed, continuing optimistically")
		} else if seen {
			return
		}
		if p.dedup.SeenOrAdd(norm.MessageID) {
			return
		}
	}

	switch norm.MessageType {
	case message.TypeDeleteChannel:
		p.handleDeletedSourceChannel(ctx, norm)
	case message.TypeDM:
		p.handleDM(ctx, norm)
	default:
		p.handleRegular(ctx, norm)
	}

	p.processed++
	if p.processed%logBatchEvery == 0 {
		p.log.Info().Int64("processed", p.processed).Msg("republisher batch processed")
	}
}

func (p *Processor) handleDeletedSourceChannel(ctx context.Context, norm message.Normalized) {
	destID, ok, err := p.store.DestinationForSource(ctx, norm.ChannelID)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to resolve destination channel for deleted source")
		return
	}
	if !ok {
		return
	}
	if _, err := p.dg.ChannelDelete(destID, discordgo.WithContext(ctx)); err != nil {
		p.log.Warn().Err(err).Str("channel_id", destID).Msg("failed to delete destination channel for deleted source")
	}
	if err := p.store.UntrackChannel(ctx, destID, norm.ChannelID); err != nil {
		p.log.Warn().Err(err).Msg("failed to untrack deleted channel mapping")
	}
}

func (p *Processor) handleDM(ctx context.Context, norm message.Normalized) {
	cfg := p.snapshot.Load()
	route, err := p.dmInbound.Resolve(ctx, cfg.DestinationServer, norm)
	if err != nil {
		p.log.Error().Err(err).Str("dm_user_id", norm.DMUserID).Msg("failed to resolve dm route, dropping message")
		return
	}

	payload := ExecutePayload{
		Username: norm.DMUsername,
		Content:  norm.Content,
		Embeds:   norm.Embeds,
	}
	files := p.prepareAttachments(ctx, norm.Attachments)

	p.executeWithRetry(ctx, route.WebhookURL, "", payload, files)
}

func (p *Processor) handleRegular(ctx context.Context, norm message.Normalized) {
	routeKey := message.RouteKey(norm.CategoryName, norm.ServerName, norm.ChannelName)

	route, err := p.resolver.Resolve(ctx, norm)
	if err != nil {
		p.log.Error().Err(err).Str("route_key", routeKey).Msg("failed to resolve webhook route, dropping message")
		return
	}

	if p.isArchived(route.ChannelID) {
		return
	}

	if IsArchiveTrigger(norm.AuthorName, norm.Content, norm.Embeds) {
		p.archiveChannel(ctx, route.ChannelID)
		return
	}

	p.rememberChannel(norm)

	content := RenderContent(norm, p.channelIndexSnapshot())
	embeds := p.resolveEmbedMentions(ctx, norm)
	parts := message.SplitContent(content)
	files := p.prepareAttachments(ctx, norm.Attachments)

	for i, part := range parts {
		payload := ExecutePayload{Username: norm.AuthorName, AvatarURL: norm.AuthorAvatar, Content: part}
		var partFiles []attachment.Prepared
		if i == 0 {
			payload.Embeds = embeds
			partFiles = files
		}
		route.WebhookURL = p.executeWithRetry(ctx, route.WebhookURL, routeKey, payload, partFiles)
	}
}

func (p *Processor) archiveChannel(ctx context.Context, channelID string) {
	if _, err := p.dg.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		p.log.Warn().Err(err).Str("channel_id", channelID).Msg("failed to delete channel on archive trigger")
	}
	p.mu.Lock()
	p.archived[channelID] = struct{}{}
	p.mu.Unlock()
}

func (p *Processor) isArchived(channelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.archived[channelID]
	return ok
}

func (p *Processor) rememberChannel(norm message.Normalized) {
	p.mu.Lock()
	p.channelIndex[norm.ChannelID] = ChannelRef{ChannelName: norm.ChannelName, ServerName: norm.ServerName}
	p.mu.Unlock()
}

func (p *Processor) channelIndexSnapshot() map[string]ChannelRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]ChannelRef, len(p.channelIndex))
	for k, v := range p.channelIndex {
		out[k] = v
	}
	return out
}

func (p *Processor) resolveEmbedMentions(ctx context.Context, norm message.Normalized) []message.Embed {
	if len(norm.Embeds) == 0 {
		return nil
	}
	destRoles := p.destinationRoleIndex(ctx)
	out := make([]message.Embed, len(norm.Embeds))
	for i, e := range norm.Embeds {
		e.Description = ResolveEmbedRoleMentions(e.Description, norm.MentionedRoles, destRoles)
		out[i] = e
	}
	return out
}

func (p *Processor) destinationRoleIndex(ctx context.Context) map[string]string {
	p.mu.Lock()
	if len(p.roleCache) > 0 {
		defer p.mu.Unlock()
		return p.roleCache
	}
	p.mu.Unlock()

	cfg := p.snapshot.Load()
	roles, err := p.dg.GuildRoles(cfg.DestinationServer, discordgo.WithContext(ctx))
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to list destination guild roles")
		return map[string]string{}
	}

	index := make(map[string]string, len(roles))
	for _, r := range roles {
		index[strings.ToLower(r.Name)] = r.ID
	}

	p.mu.Lock()
	p.roleCache = index
	p.mu.Unlock()
	return index
}

func (p *Processor) prepareAttachments(ctx context.Context, urls []string) []attachment.Prepared {
	var files []attachment.Prepared
	for _, url := range urls {
		name := filenameFromURL(url)
		prepared, err := p.attach.Prepare(ctx, url, name)
		if err != nil {
			p.log.Warn().Err(err).Str("url", url).Msg("failed to download attachment")
			continue
		}
		if prepared.Oversized {
			continue
		}
		files = append(files, prepared)
	}
	return files
}

func filenameFromURL(url string) string {
	u := url
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		return u[i+1:]
	}
	return "attachment"
}

// executeWithRetry drives one rendered part through the webhook HTTP
// execution contract (§4.2), returning the webhook URL the caller carries
// across subsequent parts of the same message. The returned URL is always
// webhookURL: an Unknown Webhook response evicts the route so the next
// message reprovisions it, and the current part is not retried.
func (p *Processor) executeWithRetry(ctx context.Context, webhookURL, routeKey string, payload ExecutePayload, files []attachment.Prepared) string {
	for attempt := 0; attempt < maxPartAttempts; attempt++ {
		result := p.webhook.Execute(ctx, webhookURL, payload, files)

		switch result.outcome {
		case outcomeSuccess:
			return webhookURL

		case outcomeReprovisionAndRetry:
			if routeKey == "" {
				return webhookURL
			}
			if err := p.resolver.Evict(ctx, routeKey); err != nil {
				p.log.Warn().Err(err).Str("route_key", routeKey).Msg("failed to evict unknown webhook route")
			}
			p.log.Info().Str("route_key", routeKey).Msg("webhook route gone, will reprovision on next message")
			return webhookURL

		case outcomeDropChannelGone:
			if routeKey != "" {
				if err := p.resolver.Evict(ctx, routeKey); err != nil {
					p.log.Warn().Err(err).Str("route_key", routeKey).Msg("failed to evict dead channel route")
				}
			}
			p.log.Warn().Str("route_key", routeKey).Msg("destination channel gone, dropping message")
			return webhookURL

		case outcomeDropPayload:
			p.log.Warn().Err(result.err).Str("route_key", routeKey).Msg("dropping message")
			return webhookURL

		case outcomeTruncateAndRetry:
			payload.Content = truncateContent(payload.Content, 1900)
			continue

		case outcomeRateLimited:
			select {
			case <-ctx.Done():
				return webhookURL
			case <-time.After(result.retryAfter):
			}
			continue

		case outcomeServerError:
			backoff := time.Duration(2*(attempt+1)) * time.Second
			p.log.Warn().Err(result.err).Dur("backoff", backoff).Msg("webhook server error, backing off")
			select {
			case <-ctx.Done():
				return webhookURL
			case <-time.After(backoff):
			}
			continue
		}
	}

	p.log.Warn().Str("route_key", routeKey).Msg("exhausted retries, dropping message part")
	return webhookURL
}

func truncateContent(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit])
}

// batchCount reports the running processed-message count, read by tests.
func (p *Processor) batchCount() int64 {
	return p.processed
}

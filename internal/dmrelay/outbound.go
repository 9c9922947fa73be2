package dmrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

// relayTimeout bounds the total outbound DM-relay request, per §5.
const relayTimeout = 30 * time.Second

// sendDMRequest is the body posted to the collector process's /send_dm
// endpoint (§4.4, §6).
type sendDMRequest struct {
	Action      string   `json:"action"`
	Token       string   `json:"token"`
	UserID      string   `json:"user_id"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// OutboundWatcher relays messages authored in a destination DM-mirror
// channel back out to the peer, choosing the sender token via
// find_token_for_user and reacting on the result (§4.4).
type OutboundWatcher struct {
	dg       *discordgo.Session
	store    *routingstore.Store
	snapshot *config.Snapshot
	relayURL string
	http     *http.Client
	log      zerolog.Logger
}

// NewOutboundWatcher builds a watcher that POSTs to relayURL (the collector
// process's /send_dm endpoint) whenever an allowed user posts in a
// provisioned DM-mirror channel.
func NewOutboundWatcher(dg *discordgo.Session, store *routingstore.Store, snapshot *config.Snapshot, relayURL string, logger zerolog.Logger) *OutboundWatcher {
	return &OutboundWatcher{
		dg:       dg,
		store:    store,
		snapshot: snapshot,
		relayURL: relayURL,
		http:     &http.Client{Timeout: relayTimeout},
		log:      logger.With().Str("component", "dmrelay.outbound").Logger(),
	}
}

// Handle is a discordgo MessageCreate handler. It ignores messages authored
// by a webhook (the inbound mirror itself) or outside a routed DM channel,
// and otherwise relays content+attachments to the peer, reacting with the
// outcome.
func (w *OutboundWatcher) Handle(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.WebhookID != "" || m.Author == nil || m.Author.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()

	route, ok, err := w.store.GetDMRoute(ctx, m.ChannelID)
	if err != nil {
		w.log.Warn().Err(err).Str("channel_id", m.ChannelID).Msg("failed to look up dm route for outbound relay")
		return
	}
	if !ok {
		return
	}

	senderToken := route.ReceivingToken
	if cfg := w.snapshot.Load(); cfg != nil {
		if tok, ok := cfg.TokenForUser(route.UserID); ok {
			senderToken = tok.Token
		}
	}

	attachments := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, a.URL)
	}

	w.react(m.ChannelID, m.ID, w.relay(ctx, senderToken, route.UserID, m.Content, attachments))
}

type relayOutcome int

const (
	relaySuccess relayOutcome = iota
	relayFailure
	relayTimedOut
	relayUnavailable
	relayException
)

func (w *OutboundWatcher) relay(ctx context.Context, token, userID, content string, attachments []string) relayOutcome {
	body, err := json.Marshal(sendDMRequest{Action: "send_dm", Token: token, UserID: userID, Content: content, Attachments: attachments})
	if err != nil {
		w.log.Error().Err(err).Msg("failed to marshal outbound dm relay request")
		return relayException
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.relayURL, bytes.NewReader(body))
	if err != nil {
		w.log.Error().Err(err).Msg("failed to build outbound dm relay request")
		return relayException
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return relayTimedOut
		}
		w.log.Warn().Err(err).Msg("dm relay service unavailable")
		return relayUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		return relaySuccess
	}
	return relayFailure
}

func (w *OutboundWatcher) react(channelID, messageID string, outcome relayOutcome) {
	emoji := map[relayOutcome]string{
		relaySuccess:     "✅",
		relayFailure:     "❌",
		relayTimedOut:    "⏰",
		relayUnavailable: "⚠️",
		relayException:   "💥",
	}[outcome]

	if err := w.dg.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		w.log.Warn().Err(err).Str("channel_id", channelID).Msg("failed to react to outbound dm relay message")
	}
}

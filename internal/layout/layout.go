// Package layout implements the Layout Guardian (§4.5): it keeps the two
// "moveable" destination categories (Release Guides, Daily Schedule)
// self-organizing and self-expiring, while leaving every other category
// alone — automation never touches it, and the captured snapshot is a
// reference that neither loop reads back.
package layout

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

// releaseDatePattern matches the "MM-DD" form Release Guides channel names
// encode, e.g. "04-17│patch-notes".
var releaseDatePattern = regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})\b`)

// dailyTimePattern matches the "H(am|pm)" form Daily Schedule channel names
// encode, e.g. "11am-restock".
var dailyTimePattern = regexp.MustCompile(`(?i)\b(\d{1,2})(am|pm)\b`)

// ParseReleaseDate extracts a Release Guides channel's encoded MM-DD date,
// applied against year, per §4.5/§8.
func ParseReleaseDate(name string, year int) (time.Time, bool) {
	m := releaseDatePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	month, err1 := strconv.Atoi(m[1])
	day, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// ParseDailyHour extracts a Daily Schedule channel's encoded "H(am|pm)"
// hour, converted to 24-hour form, per §4.5/§8.
func ParseDailyHour(name string) (int, bool) {
	m := dailyTimePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, true
}

// Guardian owns the organizer and retention loops over the destination
// guild's two moveable categories.
type Guardian struct {
	dg       *discordgo.Session
	store    *routingstore.Store
	snapshot *config.Snapshot
	log      zerolog.Logger
}

// NewGuardian builds a Guardian acting against the destination guild
// through dg.
func NewGuardian(dg *discordgo.Session, store *routingstore.Store, snapshot *config.Snapshot, logger zerolog.Logger) *Guardian {
	return &Guardian{dg: dg, store: store, snapshot: snapshot, log: logger.With().Str("component", "layout").Logger()}
}

func (g *Guardian) isProtected(channelID string) bool {
	cfg := g.snapshot.Load()
	for _, id := range cfg.ProtectedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

package layout

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/1TapDev/1Tap-Notify/internal/config"
)

func TestParseReleaseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		wantMonth time.Month
		wantDay   int
		wantOK    bool
	}{
		{name: "basic", in: "04-17│patch-notes", wantMonth: time.April, wantDay: 17, wantOK: true},
		{name: "no separator", in: "12-25-holiday-update", wantMonth: time.December, wantDay: 25, wantOK: true},
		{name: "no date", in: "announcements", wantOK: false},
		{name: "out of range month", in: "13-01-bad", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseReleaseDate(tt.in, 2026)
			if ok != tt.wantOK {
				t.Fatalf("ParseReleaseDate(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Month() != tt.wantMonth || got.Day() != tt.wantDay {
				t.Errorf("ParseReleaseDate(%q) = %v, want month=%v day=%v", tt.in, got, tt.wantMonth, tt.wantDay)
			}
		})
	}
}

func TestParseDailyHour(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		wantHour int
		wantOK   bool
	}{
		{name: "11am", in: "11am-restock", wantHour: 11, wantOK: true},
		{name: "8pm", in: "8pm-raid", wantHour: 20, wantOK: true},
		{name: "noon", in: "12pm-lunch", wantHour: 12, wantOK: true},
		{name: "midnight", in: "12am-reset", wantHour: 0, wantOK: true},
		{name: "no pattern", in: "general", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseDailyHour(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseDailyHour(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.wantHour {
				t.Errorf("ParseDailyHour(%q) = %d, want %d", tt.in, got, tt.wantHour)
			}
		})
	}
}

func TestGuardianIsProtected(t *testing.T) {
	t.Parallel()

	snapshot := config.NewSnapshot(&config.Config{ProtectedChannels: []string{"chan-1"}})
	g := NewGuardian(nil, nil, snapshot, zerolog.Nop())

	if !g.isProtected("chan-1") {
		t.Error("isProtected(\"chan-1\") = false, want true")
	}
	if g.isProtected("chan-2") {
		t.Error("isProtected(\"chan-2\") = true, want false")
	}
}

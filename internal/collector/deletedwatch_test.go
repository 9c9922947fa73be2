package collector

import (
	"testing"

	"github.com/1TapDev/1Tap-Notify/internal/message"
)

func TestTimeOrDatePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "date with dash", in: "04-17 release", want: true},
		{name: "date with slash", in: "12/25", want: true},
		{name: "time am", in: "9am reset", want: true},
		{name: "time pm uppercase", in: "Raid 8PM", want: true},
		{name: "no pattern", in: "general-chat", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := timeOrDatePattern.MatchString(tt.in)
			if got != tt.want {
				t.Errorf("timeOrDatePattern.MatchString(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTrackedChannelReportsMissing(t *testing.T) {
	t.Parallel()

	w := NewDeletedChannelWatcher(nil, []string{"guild-1"}, noopLogger())
	w.track("chan-1", "guild-1", "Guild One", "04-17")

	events := make(chan DeletedChannelEvent, 1)
	w.reportMissing("guild-1", map[string]bool{}, events)

	select {
	case ev := <-events:
		if ev.ChannelID != "chan-1" {
			t.Errorf("ChannelID = %q, want %q", ev.ChannelID, "chan-1")
		}
	default:
		t.Fatal("expected a DeletedChannelEvent, got none")
	}
}

func TestDeletedChannelEventToNormalized(t *testing.T) {
	t.Parallel()

	ev := DeletedChannelEvent{ServerID: "guild-1", ServerName: "Guild One", ChannelID: "chan-1", ChannelName: "04-17"}
	got := ev.ToNormalized()

	if got.MessageType != message.TypeDeleteChannel {
		t.Errorf("MessageType = %q, want %q", got.MessageType, message.TypeDeleteChannel)
	}
	if got.ChannelID != "chan-1" {
		t.Errorf("ChannelID = %q, want %q", got.ChannelID, "chan-1")
	}
	if got.ServerRealName != "Guild One" || got.ChannelRealName != "04-17" {
		t.Errorf("ServerRealName/ChannelRealName = %q/%q, want %q/%q", got.ServerRealName, got.ChannelRealName, "Guild One", "04-17")
	}
}

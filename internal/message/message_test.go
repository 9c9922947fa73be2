package message

import (
	"strings"
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "General", want: "general"},
		{name: "spaces to hyphens", in: "release guides", want: "release-guides"},
		{name: "strips pipe", in: "⚡|announcements", want: "announcements"},
		{name: "strips fullwidth bar", in: "daily︱schedule", want: "dailyschedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeKey(tt.in); got != tt.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRouteKey(t *testing.T) {
	t.Parallel()

	got := RouteKey("Release Guides", "Main Server", "announcements")
	want := "release-guides-[main-server]/announcements"
	if got != want {
		t.Errorf("RouteKey() = %q, want %q", got, want)
	}
}

func TestSplitContentShort(t *testing.T) {
	t.Parallel()

	parts := SplitContent("hello world")
	if len(parts) != 1 || parts[0] != "hello world" {
		t.Fatalf("SplitContent() = %v, want single unchanged part", parts)
	}
}

func TestSplitContentLongLineWithoutNewlines(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("a", 2001)
	parts := SplitContent(content)
	if len(parts) < 2 {
		t.Fatalf("SplitContent() returned %d parts, want >= 2", len(parts))
	}
	for i, p := range parts {
		if len(p) > 1900 {
			t.Errorf("part %d has length %d, want <= 1900", i, len(p))
		}
		if p == "" {
			t.Errorf("part %d is empty", i)
		}
	}
}

func TestIsSpamDM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{name: "clean short message", content: "hey, how's it going?", want: false},
		{name: "two keyword matches", content: "claim your free nitro now, steam gift inside", want: true},
		{name: "many urls", content: "http://a.com http://b.com http://c.com", want: true},
		{name: "very long", content: strings.Repeat("x", 501), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyDMContent(tt.content).IsSpamDM()
			if got != tt.want {
				t.Errorf("IsSpamDM(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                          string
		global, nick, username, want string
	}{
		{name: "prefers global", global: "Global Name", nick: "Nick", username: "user#0", want: "Global Name"},
		{name: "falls back to nick", global: "", nick: "Nick", username: "user#0", want: "Nick"},
		{name: "falls back to username, strips discriminator", global: "", nick: "", username: "user#0", want: "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DisplayName(tt.global, tt.nick, tt.username)
			if got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectForwardedCrossGuild(t *testing.T) {
	t.Parallel()

	ref := ReferenceInfo{Present: true, GuildID: "999", AuthorName: "Alice"}
	attribution, ok := DetectForwarded(ref, "111", "some content", false, false)
	if !ok || attribution != "Alice" {
		t.Fatalf("DetectForwarded() = (%q, %v), want (\"Alice\", true)", attribution, ok)
	}
}

func TestDetectForwardedSameGuildIsNotForwarded(t *testing.T) {
	t.Parallel()

	ref := ReferenceInfo{Present: true, GuildID: "111", AuthorName: "Alice", HasSubstance: true}
	_, ok := DetectForwarded(ref, "111", "a normal reply", false, false)
	if ok {
		t.Fatal("DetectForwarded() matched a same-guild reference, want no match (reply, not forward)")
	}
}

func TestDetectForwardedEmptyWithSubstantiveReference(t *testing.T) {
	t.Parallel()

	ref := ReferenceInfo{Present: true, GuildID: "", AuthorName: "Bob", HasSubstance: true}
	attribution, ok := DetectForwarded(ref, "", "", false, false)
	if !ok || attribution != "Bob" {
		t.Fatalf("DetectForwarded() = (%q, %v), want (\"Bob\", true)", attribution, ok)
	}
}

func TestDetectForwardedInlinePhrase(t *testing.T) {
	t.Parallel()

	_, ok := DetectForwarded(ReferenceInfo{}, "", "Forwarded from: Carol's server", false, false)
	if !ok {
		t.Fatal("DetectForwarded() did not match inline \"forwarded from\" phrase")
	}
}

func TestDetectForwardedNoMatch(t *testing.T) {
	t.Parallel()

	_, ok := DetectForwarded(ReferenceInfo{}, "111", "just a regular message", false, false)
	if ok {
		t.Fatal("DetectForwarded() matched plain content, want no match")
	}
}

package republisher

import (
	"strings"
	"testing"

	"github.com/1TapDev/1Tap-Notify/internal/message"
)

func TestResolveChannelMentionsKnown(t *testing.T) {
	t.Parallel()

	index := map[string]ChannelRef{"123": {ChannelName: "general", ServerName: "Acme"}}
	got := ResolveChannelMentions("see <#123> for details", index)
	want := "see `Acme > #general` for details"
	if got != want {
		t.Errorf("ResolveChannelMentions() = %q, want %q", got, want)
	}
}

func TestResolveChannelMentionsUnknownLeftAlone(t *testing.T) {
	t.Parallel()

	got := ResolveChannelMentions("see <#999>", map[string]ChannelRef{})
	if got != "see <#999>" {
		t.Errorf("ResolveChannelMentions() = %q, want unchanged", got)
	}
}

func TestResolveRoleMentions(t *testing.T) {
	t.Parallel()

	got := ResolveRoleMentions("hello <@&55>", map[string]string{"55": "Admins"})
	want := "hello **@Admins**"
	if got != want {
		t.Errorf("ResolveRoleMentions() = %q, want %q", got, want)
	}
}

func TestResolveEmbedRoleMentionsReusesDestRole(t *testing.T) {
	t.Parallel()

	got := ResolveEmbedRoleMentions("<@&55>", map[string]string{"55": "Admins"}, map[string]string{"admins": "900"})
	if got != "<@&900>" {
		t.Errorf("ResolveEmbedRoleMentions() = %q, want <@&900>", got)
	}
}

func TestResolveEmbedRoleMentionsFallsBackToPlainText(t *testing.T) {
	t.Parallel()

	got := ResolveEmbedRoleMentions("<@&55>", map[string]string{"55": "Admins"}, map[string]string{})
	if got != "@Admins" {
		t.Errorf("ResolveEmbedRoleMentions() = %q, want @Admins", got)
	}
}

func TestBuildReplyHeader(t *testing.T) {
	t.Parallel()

	got := BuildReplyHeader("Alice", "line one\nline two")
	if !strings.HasPrefix(got, "> **Alice**\n") {
		t.Errorf("BuildReplyHeader() = %q, want prefix with bold author", got)
	}
	if !strings.Contains(got, "> line one\n") || !strings.Contains(got, "> line two\n") {
		t.Errorf("BuildReplyHeader() = %q, want each line quoted", got)
	}
}

func TestRenderContentForwardedTakesPrecedence(t *testing.T) {
	t.Parallel()

	norm := message.Normalized{
		Content:       "hi",
		IsForwarded:   true,
		ForwardedFrom: "Someone",
		ReplyTo:       "Other",
	}
	got := RenderContent(norm, nil)
	if !strings.HasPrefix(got, "📤 **Forwarded from:** Someone\n") {
		t.Errorf("RenderContent() = %q, want forwarded header", got)
	}
}

func TestIsArchiveTriggerAuthorAndPhrase(t *testing.T) {
	t.Parallel()

	if !IsArchiveTrigger("Polar Helper#6493", "Channel Archive notice", nil) {
		t.Error("expected archive trigger for Polar Helper with matching phrase")
	}
	if !IsArchiveTrigger("Someone Else", "channel archive", nil) {
		t.Error("expected archive trigger for the exact literal regardless of author")
	}
	if IsArchiveTrigger("Someone Else", "channel archive notice", nil) {
		t.Error("non-Polar author with only a substring match should not trigger")
	}
}

func TestIsArchiveTriggerLiteralAndSubstring(t *testing.T) {
	t.Parallel()

	if !IsArchiveTrigger("anyone", "!archive", nil) {
		t.Error("expected archive trigger for literal !archive")
	}
	if !IsArchiveTrigger("anyone", "this was archived to forum thread #42", nil) {
		t.Error("expected archive trigger for 'archived to forum thread' substring")
	}
	if IsArchiveTrigger("anyone", "just chatting", nil) {
		t.Error("expected no archive trigger for ordinary content")
	}
}

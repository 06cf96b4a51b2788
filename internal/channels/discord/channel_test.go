package discord

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/seaturtle/internal/channels"
	"github.com/nextlevelbuilder/seaturtle/internal/config"
)

func testChannel(t *testing.T, cred config.DiscordCredential) *Channel {
	t.Helper()
	if cred.BotToken == "" {
		cred.BotToken = "test-token"
	}
	c, err := New("default", cred, func(channels.Inbound) {})
	if err != nil {
		t.Fatal(err)
	}
	c.botUserID = "bot123"
	return c
}

func TestStripBotMentions(t *testing.T) {
	c := testChannel(t, config.DiscordCredential{})

	tests := []struct {
		in   string
		want string
	}{
		{"<@bot123> hello", " hello"},
		{"<@!bot123> hello", " hello"},
		{"hi <@bot123> there", "hi  there"},
		{"<@other> hello", "<@other> hello"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := c.stripBotMentions(tt.in); got != tt.want {
			t.Errorf("stripBotMentions(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGuildAndChannelAllowlists(t *testing.T) {
	c := testChannel(t, config.DiscordCredential{
		AllowedGuildIDs:   []string{"g1"},
		AllowedChannelIDs: []string{"c1", "c2"},
	})

	if !c.guildAllowed("g1") || c.guildAllowed("g2") {
		t.Error("guild allowlist not enforced")
	}
	if !c.channelAllowed("c2") || c.channelAllowed("c9") {
		t.Error("channel allowlist not enforced")
	}

	open := testChannel(t, config.DiscordCredential{})
	if !open.guildAllowed("any") || !open.channelAllowed("any") {
		t.Error("empty allowlists should admit everything")
	}
}

func TestSendRequiresRunning(t *testing.T) {
	c := testChannel(t, config.DiscordCredential{})
	if err := c.Send(context.Background(), "chan", "hi"); err == nil {
		t.Error("send on stopped channel should error")
	}
}

func TestMissingTokenFails(t *testing.T) {
	if _, err := New("default", config.DiscordCredential{}, nil); err == nil {
		t.Error("want error when no token configured")
	}
}

func TestSlashCommandsMirrorSystemCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range slashCommands() {
		if cmd.Name == "" || cmd.Description == "" {
			t.Errorf("slash command missing name or description: %+v", cmd)
		}
		names[cmd.Name] = true
	}
	for _, want := range []string{"help", "reset", "context", "model", "usage", "status", "restart"} {
		if !names[want] {
			t.Errorf("slash command %q not registered", want)
		}
	}
}

func TestMentionsOnlyDefault(t *testing.T) {
	c := testChannel(t, config.DiscordCredential{})
	if !c.mentionsOnly {
		t.Error("mentions-only should default to true")
	}

	off := false
	c2 := testChannel(t, config.DiscordCredential{RespondToMentionsOnly: &off})
	if c2.mentionsOnly {
		t.Error("explicit false should disable mentions-only")
	}
}

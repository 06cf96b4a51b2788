package telegram

import (
	"testing"

	"github.com/nextlevelbuilder/seaturtle/internal/channels"
	"github.com/nextlevelbuilder/seaturtle/internal/config"
)

func TestParseChatID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12345", 12345, false},
		{"-100987654321", -100987654321, false},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseChatID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseChatID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseChatID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMenuCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range menuCommands() {
		if cmd.Command == "" || cmd.Description == "" {
			t.Errorf("menu command missing name or description: %+v", cmd)
		}
		names[cmd.Command] = true
	}
	for _, want := range []string{"start", "help", "reset", "context", "model", "usage", "status", "restart"} {
		if !names[want] {
			t.Errorf("menu command %q not registered", want)
		}
	}
}

func TestMissingTokenFails(t *testing.T) {
	if _, err := New("default", config.ChannelCredential{}, func(channels.Inbound) {}); err == nil {
		t.Error("want error when no token configured")
	}
}

package bus

import (
	"bytes"
	"reflect"
	"testing"
)

func TestCommandRoundTrip(t *testing.T) {
	cases := []Command{
		{Type: CmdMessage, Content: "hello", Source: "telegram", ChatID: "10", UserID: "42"},
		{Type: CmdSetModel, Model: "gpt-4o"},
		{Type: CmdResetContext},
		{Type: CmdGetStats, RequestID: "req-1"},
		{Type: CmdShutdown},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, c := range cases {
		if err := w.Write(c); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	var got []Command
	if err := ReadCommands(&buf, func(c Command) { got = append(got, c) }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, cases) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cases)
	}
}

func TestEventRoundTrip(t *testing.T) {
	cases := []Event{
		{Type: EventReply, Content: "hi", Source: "discord", ChatID: "7", UserID: "42"},
		{Type: EventStats, RequestID: "req-2", Stats: &ContextStats{
			Model: "gemini-2.5-flash", Messages: 4, EstimatedTokens: 120,
			MaxTokens: 1000, UsagePercent: 12.0, CompressionCount: 1,
		}},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, e := range cases {
		if err := w.Write(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	var got []Event
	if err := ReadEvents(&buf, func(e Event) { got = append(got, e) }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, cases) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cases)
	}
}

func TestReadSkipsGarbageLines(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("not json\n")
	buf.WriteString("{\"no_type\":true}\n")
	buf.WriteString("{\"type\":\"message\",\"content\":\"ok\"}\n")

	var got []Command
	if err := ReadCommands(&buf, func(c Command) { got = append(got, c) }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].Content != "ok" {
		t.Errorf("expected single valid command, got %+v", got)
	}
}

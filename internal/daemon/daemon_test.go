package daemon

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/seaturtle/internal/bus"
	"github.com/nextlevelbuilder/seaturtle/internal/channels"
	"github.com/nextlevelbuilder/seaturtle/internal/config"
)

// TestHelperProcess stands in for a worker binary in daemon tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("SEATURTLE_TEST_WORKER") == "" {
		return
	}

	out := bus.NewWriter(os.Stdout)
	_ = bus.ReadCommands(os.Stdin, func(cmd bus.Command) {
		switch cmd.Type {
		case bus.CmdShutdown:
			os.Exit(0)
		case bus.CmdMessage:
			_ = out.Write(bus.Event{
				Type:    bus.EventReply,
				Content: "echo: " + cmd.Content,
				Source:  cmd.Source,
				ChatID:  cmd.ChatID,
			})
		case bus.CmdGetStats:
			_ = out.Write(bus.Event{
				Type:      bus.EventStats,
				Source:    cmd.Source,
				ChatID:    cmd.ChatID,
				RequestID: cmd.RequestID,
				Stats: &bus.ContextStats{
					Model:            "gemini-2.5-flash",
					Messages:         4,
					EstimatedTokens:  120,
					MaxTokens:        100000,
					UsagePercent:     0.1,
					CompressionCount: 1,
				},
			})
		}
	})
	os.Exit(0)
}

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := config.Default()
	cfg.Global.DataDir = t.TempDir()
	agent := cfg.Agents["default"]
	agent.Workspace = t.TempDir()
	cfg.Agents["default"] = agent

	d, err := New(cfg, "")
	if err != nil {
		t.Fatal(err)
	}
	d.sup.SetSpawner(func(agentID string) *exec.Cmd {
		cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "SEATURTLE_TEST_WORKER=1")
		return cmd
	})
	t.Cleanup(d.sup.StopAll)
	return d
}

func inbound(content string) channels.Inbound {
	return channels.Inbound{
		Channel: "telegram",
		AgentID: "default",
		ChatID:  "42",
		UserID:  "7",
		Content: content,
	}
}

// recordingChannel captures Send calls in place of a real chat platform.
type recordingChannel struct {
	mu   sync.Mutex
	sent []string
}

func (c *recordingChannel) Name() string                { return "telegram" }
func (c *recordingChannel) AgentID() string             { return "default" }
func (c *recordingChannel) Start(context.Context) error { return nil }
func (c *recordingChannel) Stop(context.Context) error  { return nil }
func (c *recordingChannel) IsRunning() bool             { return true }

func (c *recordingChannel) Send(_ context.Context, chatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *recordingChannel) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func waitForSent(t *testing.T, ch *recordingChannel, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, text := range ch.snapshot() {
			if strings.Contains(text, want) {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no reply containing %q delivered to the channel", want)
}

func TestSlashCommandReplyGoesThroughDispatcher(t *testing.T) {
	d := testDaemon(t)
	ch := &recordingChannel{}
	d.channels["default"] = []channels.Channel{ch}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.dispatch(ctx)

	// RouteMessage returns immediately; the reply arrives via the dispatcher.
	d.RouteMessage(inbound("/help"))
	waitForSent(t, ch, "/reset")
}

func TestUnavailableAgentReplyGoesThroughDispatcher(t *testing.T) {
	d := testDaemon(t)
	ch := &recordingChannel{}
	d.channels["default"] = []channels.Channel{ch}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.dispatch(ctx)

	// No worker started, so routing fails and the fallback is queued.
	d.RouteMessage(inbound("hello"))
	waitForSent(t, ch, "not available")
}

func TestStaticCommands(t *testing.T) {
	d := testDaemon(t)
	ctx := context.Background()

	if got := d.HandleSystemCommand(ctx, inbound("/start")); !strings.Contains(got, "Turtle") {
		t.Errorf("/start = %q", got)
	}
	if got := d.HandleSystemCommand(ctx, inbound("/help")); !strings.Contains(got, "/reset") {
		t.Errorf("/help = %q", got)
	}
	if got := d.HandleSystemCommand(ctx, inbound("/bogus")); !strings.Contains(got, "Unknown command") {
		t.Errorf("/bogus = %q", got)
	}
	// Telegram group form with @botname suffix.
	if got := d.HandleSystemCommand(ctx, inbound("/help@turtle_bot")); !strings.Contains(got, "/reset") {
		t.Errorf("/help@bot = %q", got)
	}
}

func TestModelCommands(t *testing.T) {
	d := testDaemon(t)
	ctx := context.Background()

	if got := d.HandleSystemCommand(ctx, inbound("/model")); !strings.Contains(got, "Usage:") {
		t.Errorf("/model = %q", got)
	}

	got := d.HandleSystemCommand(ctx, inbound("/model list google"))
	if !strings.Contains(got, "GOOGLE") || !strings.Contains(got, "gemini-2.5-flash") {
		t.Errorf("/model list google = %q", got)
	}

	if got := d.HandleSystemCommand(ctx, inbound("/model list nope")); !strings.Contains(got, "No models found") {
		t.Errorf("/model list nope = %q", got)
	}

	if got := d.HandleSystemCommand(ctx, inbound("/model made-up-9000")); !strings.Contains(got, "Unknown model") {
		t.Errorf("/model unknown = %q", got)
	}
}

func TestSetModelRequiresRunningWorker(t *testing.T) {
	d := testDaemon(t)
	got := d.HandleSystemCommand(context.Background(), inbound("/model gpt-4o-mini"))
	if !strings.Contains(got, "not available") {
		t.Errorf("reply = %q", got)
	}

	if err := d.sup.Start("default"); err != nil {
		t.Fatal(err)
	}
	got = d.HandleSystemCommand(context.Background(), inbound("/model gpt-4o-mini"))
	if got != "✅ Model set to gpt-4o-mini (openai)." {
		t.Errorf("reply = %q", got)
	}
}

func TestResetCommand(t *testing.T) {
	d := testDaemon(t)
	if err := d.sup.Start("default"); err != nil {
		t.Fatal(err)
	}
	got := d.HandleSystemCommand(context.Background(), inbound("/reset"))
	if got != "✅ Conversation history reset." {
		t.Errorf("reply = %q", got)
	}
}

func TestContextStatsRoundTrip(t *testing.T) {
	d := testDaemon(t)
	if err := d.sup.Start("default"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.dispatch(ctx)

	got := d.HandleSystemCommand(ctx, inbound("/context"))
	if !strings.Contains(got, "📊 Context Stats:") {
		t.Fatalf("reply = %q", got)
	}
	for _, want := range []string{"gemini-2.5-flash", "Messages: 4", "120 / 100000", "Compressions: 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("reply missing %q:\n%s", want, got)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	d := testDaemon(t)
	ctx := context.Background()

	if got := d.HandleSystemCommand(ctx, inbound("/status")); !strings.Contains(got, "not started") {
		t.Errorf("status = %q", got)
	}

	if err := d.sup.Start("default"); err != nil {
		t.Fatal(err)
	}
	got := d.HandleSystemCommand(ctx, inbound("/status"))
	if !strings.Contains(got, "State: running") || !strings.Contains(got, "PID:") {
		t.Errorf("status = %q", got)
	}
}

func TestUsageCommand(t *testing.T) {
	d := testDaemon(t)
	got := d.HandleSystemCommand(context.Background(), inbound("/usage"))
	if !strings.Contains(got, "📊 Token Usage (Agent: default)") {
		t.Errorf("usage = %q", got)
	}
}

func TestHeartbeatMessageFormat(t *testing.T) {
	d := testDaemon(t)
	if err := d.sup.Start("default"); err != nil {
		t.Fatal(err)
	}

	tasks := []string{"one", "two", "three", "four", "five", "six", "seven"}
	d.onHeartbeatTasks("default", tasks)

	select {
	case ae := <-d.sup.Events():
		content := strings.TrimPrefix(ae.Event.Content, "echo: ")
		if !strings.HasPrefix(content, "You have 7 pending task(s):\n") {
			t.Errorf("heartbeat message = %q", content)
		}
		// Only the first five tasks are listed.
		if !strings.Contains(content, "- five") || strings.Contains(content, "- six") {
			t.Errorf("task cap not applied:\n%s", content)
		}
		if ae.Event.Source != "heartbeat" {
			t.Errorf("source = %q", ae.Event.Source)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat echo from worker")
	}
}

func TestRouteMessageToWorker(t *testing.T) {
	d := testDaemon(t)
	if err := d.sup.Start("default"); err != nil {
		t.Fatal(err)
	}

	d.RouteMessage(channels.Inbound{
		Channel: "cli", AgentID: "default", ChatID: "1", UserID: "1", Content: "hello",
	})

	select {
	case ae := <-d.sup.Events():
		if ae.Event.Content != "echo: hello" || ae.Event.Source != "cli" {
			t.Errorf("event = %+v", ae.Event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message did not reach the worker")
	}
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	if err := WritePIDFile(path); err != nil {
		t.Fatal(err)
	}
	pid, err := ReadPIDFile(path)
	if err != nil || pid != os.Getpid() {
		t.Errorf("pid = %d err = %v", pid, err)
	}

	// Our own live PID blocks a second daemon.
	if err := WritePIDFile(path); err == nil {
		t.Error("second write should refuse while the owner is alive")
	}

	// A stale PID is replaced.
	if err := os.WriteFile(path, []byte("999999"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WritePIDFile(path); err != nil {
		t.Errorf("stale pid not replaced: %v", err)
	}

	RemovePIDFile(path)
	if _, err := ReadPIDFile(path); err == nil {
		t.Error("pid file still present after remove")
	}
}

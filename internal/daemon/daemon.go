// Package daemon is the long-running supervisor process: it owns the agent
// workers, the chat channels, the heartbeat monitors, and the dispatcher
// that routes worker replies back to the platform they came from.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/seaturtle/internal/bus"
	"github.com/nextlevelbuilder/seaturtle/internal/channels"
	"github.com/nextlevelbuilder/seaturtle/internal/channels/discord"
	"github.com/nextlevelbuilder/seaturtle/internal/channels/telegram"
	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/heartbeat"
	"github.com/nextlevelbuilder/seaturtle/internal/supervisor"
	"github.com/nextlevelbuilder/seaturtle/internal/usage"
	"github.com/nextlevelbuilder/seaturtle/internal/workspace"
)

const (
	// healthInterval is how often crashed workers are swept up.
	healthInterval = 30 * time.Second
	// statsTimeout bounds how long /context waits for the worker.
	statsTimeout = 10 * time.Second
	// maxHeartbeatTasks caps how many tasks a heartbeat message lists.
	maxHeartbeatTasks = 5
)

// Daemon wires the supervisor, channels, and heartbeats together.
type Daemon struct {
	cfg        *config.Config
	configPath string
	sup        *supervisor.Supervisor

	channels map[string][]channels.Channel // agentID -> bindings

	mu      sync.Mutex
	pending map[string]chan bus.Event // request_id -> waiter

	outbound chan outboundReply

	cancel context.CancelFunc
	group  *errgroup.Group
}

// outboundReply is a reply queued for delivery through the dispatcher.
type outboundReply struct {
	AgentID string
	Source  string
	ChatID  string
	Content string
}

// New builds a daemon from config. Channels are constructed here so token
// problems surface before anything starts.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		sup:        supervisor.New(cfg, configPath),
		channels:   make(map[string][]channels.Channel),
		pending:    make(map[string]chan bus.Event),
		outbound:   make(chan outboundReply, 16),
	}
	if err := d.buildChannels(); err != nil {
		return nil, err
	}
	return d, nil
}

// buildChannels creates one channel instance per agent binding. A bot token
// shared between agents binds to the first agent only.
func (d *Daemon) buildChannels() error {
	seenTokens := make(map[string]string) // token -> owning agent

	claim := func(token, kind, agentID string) bool {
		if token == "" {
			return false
		}
		if owner, ok := seenTokens[kind+":"+token]; ok {
			slog.Warn("bot token already bound, skipping", "channel", kind,
				"agent", agentID, "bound_to", owner)
			return false
		}
		seenTokens[kind+":"+token] = agentID
		return true
	}

	for _, agentID := range d.cfg.AgentIDs() {
		agent, _ := d.cfg.ResolveAgent(agentID)
		id := agentID

		handler := func(in channels.Inbound) { d.RouteMessage(in) }

		if token := config.ResolveSecret(agent.Telegram.BotToken, agent.Telegram.BotTokenEnv); claim(token, "telegram", id) {
			ch, err := telegram.New(id, agent.Telegram, handler)
			if err != nil {
				return fmt.Errorf("agent %q: %w", id, err)
			}
			d.channels[id] = append(d.channels[id], ch)
		}

		if token := config.ResolveSecret(agent.Discord.BotToken, agent.Discord.BotTokenEnv); claim(token, "discord", id) {
			ch, err := discord.New(id, agent.Discord, handler)
			if err != nil {
				return fmt.Errorf("agent %q: %w", id, err)
			}
			d.channels[id] = append(d.channels[id], ch)
		}
	}
	return nil
}

// Run starts everything and blocks until the context is canceled or a
// background loop fails.
func (d *Daemon) Run(ctx context.Context) error {
	pidPath := d.cfg.PIDFilePath()
	if err := WritePIDFile(pidPath); err != nil {
		return err
	}
	defer RemovePIDFile(pidPath)

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	for _, agentID := range d.cfg.AgentIDs() {
		if err := d.sup.Start(agentID); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	d.group = g

	g.Go(func() error { return d.dispatch(gctx) })
	g.Go(func() error { return d.healthLoop(gctx) })

	for _, agentID := range d.cfg.AgentIDs() {
		agent, _ := d.cfg.ResolveAgent(agentID)
		ws := workspace.NewStore(config.ExpandHome(agent.Workspace))
		mon := heartbeat.New(d.cfg.Heartbeat, agentID, ws, d.onHeartbeatTasks)
		g.Go(func() error { return mon.Run(gctx) })
	}

	for agentID, chs := range d.channels {
		for _, ch := range chs {
			if err := ch.Start(ctx); err != nil {
				slog.Error("channel start failed", "agent", agentID,
					"channel", ch.Name(), "error", err)
			}
		}
	}

	slog.Info("daemon running", "agents", len(d.cfg.AgentIDs()), "pid_file", pidPath)

	err := g.Wait()
	d.shutdown()
	if err == context.Canceled {
		return nil
	}
	return err
}

// Stop triggers a graceful shutdown of a running daemon.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

// shutdown order: channels first so no new messages arrive, then workers.
func (d *Daemon) shutdown() {
	slog.Info("daemon shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for agentID, chs := range d.channels {
		for _, ch := range chs {
			if err := ch.Stop(stopCtx); err != nil {
				slog.Warn("channel stop", "agent", agentID, "channel", ch.Name(), "error", err)
			}
		}
	}
	d.sup.StopAll()
	slog.Info("daemon stopped")
}

// dispatch is the single egress path: worker events and queued command
// replies both leave through here. Stats replies go to their waiting
// request, everything else goes back out the channel the message came in on.
func (d *Daemon) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ae := <-d.sup.Events():
			d.handleEvent(ctx, ae)
		case r := <-d.outbound:
			d.deliverReply(ctx, r)
		}
	}
}

func (d *Daemon) handleEvent(ctx context.Context, ae supervisor.AgentEvent) {
	ev := ae.Event

	if ev.RequestID != "" {
		d.mu.Lock()
		waiter, ok := d.pending[ev.RequestID]
		delete(d.pending, ev.RequestID)
		d.mu.Unlock()
		if ok {
			waiter <- ev
			return
		}
		slog.Debug("event for expired request", "request_id", ev.RequestID)
		return
	}

	if ev.Type != bus.EventReply || ev.Content == "" {
		return
	}
	d.deliverReply(ctx, outboundReply{
		AgentID: ae.AgentID,
		Source:  ev.Source,
		ChatID:  ev.ChatID,
		Content: ev.Content,
	})
}

func (d *Daemon) deliverReply(ctx context.Context, r outboundReply) {
	switch r.Source {
	case "telegram", "discord":
		if err := d.sendToChannel(ctx, r.AgentID, r.Source, r.ChatID, r.Content); err != nil {
			slog.Error("deliver reply", "agent", r.AgentID, "source", r.Source, "error", err)
		}
	default:
		// cli and heartbeat replies have no chat to return to.
		slog.Info("agent reply", "agent", r.AgentID, "source", r.Source,
			"content", channels.Truncate(r.Content, 200))
	}
}

// enqueueReply hands a reply to the dispatcher without blocking the caller.
func (d *Daemon) enqueueReply(r outboundReply) {
	select {
	case d.outbound <- r:
	default:
		slog.Warn("outbound queue full, dropping reply", "agent", r.AgentID, "source", r.Source)
	}
}

func (d *Daemon) sendToChannel(ctx context.Context, agentID, source, chatID, text string) error {
	for _, ch := range d.channels[agentID] {
		if ch.Name() == source {
			return ch.Send(ctx, chatID, text)
		}
	}
	return fmt.Errorf("no %s channel for agent %q", source, agentID)
}

// awaitEvent registers a request_id waiter and blocks for the matching
// worker event.
func (d *Daemon) awaitEvent(ctx context.Context, requestID string, timeout time.Duration) (bus.Event, error) {
	waiter := make(chan bus.Event, 1)
	d.mu.Lock()
	d.pending[requestID] = waiter
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, requestID)
		d.mu.Unlock()
	}()

	select {
	case ev := <-waiter:
		return ev, nil
	case <-time.After(timeout):
		return bus.Event{}, fmt.Errorf("timed out waiting for agent")
	case <-ctx.Done():
		return bus.Event{}, ctx.Err()
	}
}

// healthLoop periodically restarts crashed workers.
func (d *Daemon) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if recovered := d.sup.RecoverCrashed(); len(recovered) > 0 {
				slog.Info("recovered crashed agents", "agents", recovered)
			}
		}
	}
}

// onHeartbeatTasks injects pending tasks into the agent as a heartbeat
// message.
func (d *Daemon) onHeartbeatTasks(agentID string, tasks []string) {
	shown := tasks
	if len(shown) > maxHeartbeatTasks {
		shown = shown[:maxHeartbeatTasks]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You have %d pending task(s):\n", len(tasks))
	for _, task := range shown {
		sb.WriteString("- " + task + "\n")
	}

	err := d.sup.Send(agentID, bus.Command{
		Type:    bus.CmdMessage,
		Content: sb.String(),
		Source:  "heartbeat",
	})
	if err != nil {
		slog.Warn("heartbeat delivery failed", "agent", agentID, "error", err)
	}
}

// RouteMessage is the inbound entry point for all channels. Slash commands
// run on their own goroutine because some of them block on the worker, and
// this is called from the channel's polling loop. Their replies flow back
// through the dispatcher like any worker reply.
func (d *Daemon) RouteMessage(in channels.Inbound) {
	if strings.HasPrefix(in.Content, "/") {
		go func() {
			reply := d.HandleSystemCommand(context.Background(), in)
			if reply != "" {
				d.enqueueReply(outboundReply{
					AgentID: in.AgentID,
					Source:  in.Channel,
					ChatID:  in.ChatID,
					Content: reply,
				})
			}
		}()
		return
	}

	err := d.sup.Send(in.AgentID, bus.Command{
		Type:    bus.CmdMessage,
		Content: in.Content,
		Source:  in.Channel,
		ChatID:  in.ChatID,
		UserID:  in.UserID,
	})
	if err != nil {
		slog.Error("route message", "agent", in.AgentID, "error", err)
		d.enqueueReply(outboundReply{
			AgentID: in.AgentID,
			Source:  in.Channel,
			ChatID:  in.ChatID,
			Content: "❌ Agent is not available right now.",
		})
	}
}

// Tracker returns the usage tracker for an agent (daemon-side read paths).
func (d *Daemon) Tracker(agentID string) *usage.Tracker {
	return usage.NewTracker(d.cfg.DataDir(), agentID)
}

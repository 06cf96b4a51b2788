package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/seaturtle/internal/bus"
	"github.com/nextlevelbuilder/seaturtle/internal/channels"
	"github.com/nextlevelbuilder/seaturtle/internal/models"
)

const helpText = `Available commands:
/start — Start chatting with the agent
/help — Show this help message
/reset — Reset conversation history
/context — Show context window stats
/model — Show or switch the LLM model
/model list [provider] — List available models
/usage — Show token usage and cost
/status — Show agent status
/restart — Restart the agent process

Just send a message to chat with the agent.`

// HandleSystemCommand executes a slash command and returns the reply text.
// Unknown commands get a pointer to /help.
func (d *Daemon) HandleSystemCommand(ctx context.Context, in channels.Inbound) string {
	fields := strings.Fields(in.Content)
	if len(fields) == 0 {
		return ""
	}
	// Strip the @botname suffix Telegram appends in groups.
	cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	args := fields[1:]

	switch cmd {
	case "/start":
		agent, _ := d.cfg.ResolveAgent(in.AgentID)
		return fmt.Sprintf("👋 Hi! I'm %s. Send me a message and I'll help you out. Try /help for commands.", agent.Name)

	case "/help":
		return helpText

	case "/reset":
		if err := d.sup.Send(in.AgentID, bus.Command{Type: bus.CmdResetContext}); err != nil {
			return "❌ Agent is not available: " + err.Error()
		}
		return "✅ Conversation history reset."

	case "/context":
		return d.contextStats(ctx, in)

	case "/restart":
		if err := d.sup.Restart(in.AgentID); err != nil {
			return "❌ Restart failed: " + err.Error()
		}
		return "🔄 Agent restarted."

	case "/usage":
		tracker := d.Tracker(in.AgentID)
		return tracker.Format(tracker.TotalUsage())

	case "/status":
		return d.agentStatus(in.AgentID)

	case "/model":
		return d.modelCommand(in, args)

	default:
		return "Unknown command. Try /help."
	}
}

// contextStats asks the worker for its live context stats, correlated by
// request ID.
func (d *Daemon) contextStats(ctx context.Context, in channels.Inbound) string {
	requestID := uuid.NewString()
	err := d.sup.Send(in.AgentID, bus.Command{
		Type:      bus.CmdGetStats,
		Source:    in.Channel,
		ChatID:    in.ChatID,
		RequestID: requestID,
	})
	if err != nil {
		return "❌ Agent is not available: " + err.Error()
	}

	ev, err := d.awaitEvent(ctx, requestID, statsTimeout)
	if err != nil || ev.Stats == nil {
		return "❌ Could not fetch context stats from the agent."
	}

	s := ev.Stats
	return fmt.Sprintf("📊 Context Stats:\n"+
		"  Model: %s\n"+
		"  Messages: %d\n"+
		"  Estimated tokens: %d / %d (%.1f%%)\n"+
		"  Compressions: %d",
		s.Model, s.Messages, s.EstimatedTokens, s.MaxTokens, s.UsagePercent, s.CompressionCount)
}

func (d *Daemon) agentStatus(agentID string) string {
	for _, st := range d.sup.List() {
		if st.ID != agentID {
			continue
		}
		if st.StartedAt.IsZero() {
			break
		}
		state := "stopped"
		if st.Running {
			state = "running"
		}
		uptime := time.Since(st.StartedAt).Round(time.Second)
		return fmt.Sprintf("Agent: %s\nState: %s\nPID: %d\nUptime: %s\nRestarts: %d",
			agentID, state, st.PID, uptime, st.RestartCount)
	}
	return fmt.Sprintf("Agent: %s\nState: not started", agentID)
}

func (d *Daemon) modelCommand(in channels.Inbound, args []string) string {
	if len(args) == 0 {
		return "Usage:\n/model <name> — switch model\n/model list [provider] — list models"
	}

	if strings.EqualFold(args[0], "list") {
		provider := ""
		if len(args) > 1 {
			provider = strings.ToLower(args[1])
		}
		list := models.List(provider)
		if len(list) == 0 {
			return fmt.Sprintf("No models found for provider %q. Providers: %s.",
				provider, strings.Join(models.SupportedProviders, ", "))
		}
		return models.FormatList(list)
	}

	name := args[0]
	info, ok := models.Lookup(name)
	if !ok {
		return fmt.Sprintf("❌ Unknown model: %s. Use /model list to see available models.", name)
	}
	if err := d.sup.Send(in.AgentID, bus.Command{Type: bus.CmdSetModel, Model: name}); err != nil {
		return "❌ Agent is not available: " + err.Error()
	}
	return fmt.Sprintf("✅ Model set to %s (%s).", name, info.Provider)
}

// Package worker is the agent process. It reads commands from stdin, runs
// the conversation loop against the configured LLM provider, and writes
// reply events to stdout. One worker hosts exactly one agent.
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/seaturtle/internal/bus"
	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/convo"
	"github.com/nextlevelbuilder/seaturtle/internal/models"
	"github.com/nextlevelbuilder/seaturtle/internal/prompt"
	"github.com/nextlevelbuilder/seaturtle/internal/providers"
	"github.com/nextlevelbuilder/seaturtle/internal/shell"
	"github.com/nextlevelbuilder/seaturtle/internal/usage"
	"github.com/nextlevelbuilder/seaturtle/internal/workspace"
)

// maxToolRounds bounds how many tool-call cycles a single message may spend.
const maxToolRounds = 10

// Worker hosts one agent's conversation loop. Commands are handled one at a
// time on the Run goroutine.
type Worker struct {
	agentID string
	cfg     *config.Config
	agent   config.AgentConfig

	ws      *workspace.Store
	exec    *shell.Executor
	history *convo.Manager
	tracker *usage.Tracker
	out     *bus.Writer
	tracer  trace.Tracer

	model string

	// newProvider is swappable in tests.
	newProvider func(name string) (providers.Provider, error)
	cache       map[string]providers.Provider
}

// New builds a worker for the given agent. The agent's workspace is
// initialized with default files on first use.
func New(cfg *config.Config, agentID string, out io.Writer) (*Worker, error) {
	agent, ok := cfg.ResolveAgent(agentID)
	if !ok {
		return nil, fmt.Errorf("unknown agent: %q", agentID)
	}

	wsDir := config.ExpandHome(agent.Workspace)
	ws := workspace.NewStore(wsDir)
	if err := ws.Init(agent.Name, agent.HumanName); err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}

	model := agent.Model
	if model == "" {
		model = config.Default().Agents["default"].Model
	}

	w := &Worker{
		agentID: agentID,
		cfg:     cfg,
		agent:   agent,
		ws:      ws,
		exec:    shell.NewExecutor(cfg.Shell, wsDir, agent.SandboxMode()),
		history: convo.NewManager(cfg.Context),
		tracker: usage.NewTracker(cfg.DataDir(), agentID),
		out:     bus.NewWriter(out),
		tracer:  otel.Tracer("seaturtle/worker"),
		model:   model,
		cache:   make(map[string]providers.Provider),
	}
	w.newProvider = func(name string) (providers.Provider, error) {
		return providers.New(name, cfg.ProviderKey(name), cfg.ProviderBaseURL(name), "")
	}
	return w, nil
}

// Run processes commands until stdin closes, a shutdown command arrives, or
// the context is canceled.
func (w *Worker) Run(ctx context.Context, in io.Reader) error {
	slog.Info("worker started", "agent", w.agentID, "model", w.model)

	cmds := make(chan bus.Command)
	go func() {
		defer close(cmds)
		_ = bus.ReadCommands(in, func(c bus.Command) {
			select {
			case cmds <- c:
			case <-ctx.Done():
			}
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-cmds:
			if !ok {
				slog.Info("worker inbox closed", "agent", w.agentID)
				return nil
			}
			if cmd.Type == bus.CmdShutdown {
				slog.Info("worker shutting down", "agent", w.agentID)
				return nil
			}
			w.handle(ctx, cmd)
		}
	}
}

func (w *Worker) handle(ctx context.Context, cmd bus.Command) {
	switch cmd.Type {
	case bus.CmdMessage:
		reply := w.processMessage(ctx, cmd)
		w.send(bus.Event{
			Type:    bus.EventReply,
			Content: reply,
			Source:  cmd.Source,
			ChatID:  cmd.ChatID,
			UserID:  cmd.UserID,
		})

	case bus.CmdSetModel:
		w.setModel(cmd.Model)

	case bus.CmdResetContext:
		w.history.Reset()
		slog.Info("context reset", "agent", w.agentID)

	case bus.CmdGetStats:
		stats := w.history.Stats(w.model)
		w.send(bus.Event{
			Type:      bus.EventStats,
			Source:    cmd.Source,
			ChatID:    cmd.ChatID,
			RequestID: cmd.RequestID,
			Stats:     &stats,
		})

	default:
		slog.Warn("unknown command", "agent", w.agentID, "type", cmd.Type)
	}
}

func (w *Worker) send(ev bus.Event) {
	if err := w.out.Write(ev); err != nil {
		slog.Error("write event", "agent", w.agentID, "error", err)
	}
}

func (w *Worker) setModel(model string) {
	if model == "" {
		return
	}
	w.model = model
	w.history.Append(providers.Message{
		Role:    "system",
		Content: "[Model switched to " + model + "]",
	})
	slog.Info("model switched", "agent", w.agentID, "model", model)
}

// processMessage runs the tool-call loop for one inbound message and returns
// the final reply text. All failure paths produce a user-visible reply.
func (w *Worker) processMessage(ctx context.Context, cmd bus.Command) string {
	ctx, span := w.tracer.Start(ctx, "worker.process_message",
		trace.WithAttributes(
			attribute.String("agent.id", w.agentID),
			attribute.String("message.source", cmd.Source),
		))
	defer span.End()

	// The inbound turn counts toward the compression threshold, so append
	// it before deciding whether to compress.
	w.history.Append(providers.Message{Role: "user", Content: cmd.Content})
	w.maybeCompress(ctx)

	prov, err := w.providerFor(w.model)
	if err != nil {
		return "❌ Error: " + err.Error()
	}

	system := prompt.Build(prompt.Params{
		AgentName:         w.agent.Name,
		HumanName:         w.agent.HumanName,
		SandboxMode:       w.agent.SandboxMode(),
		DangerousCommands: w.cfg.Shell.DangerousCommands,
		BlockedCommands:   w.cfg.Shell.BlockedCommands,
		Workspace:         w.ws,
	})
	tools := w.toolDefinitions()

	for round := 0; round < maxToolRounds; round++ {
		req := providers.ChatRequest{
			Messages: append([]providers.Message{{Role: "system", Content: system}}, w.history.Messages()...),
			Tools:    tools,
			Model:    w.model,
			Options:  w.chatOptions(),
		}

		resp, err := prov.Chat(ctx, req)
		if err != nil {
			slog.Error("llm call failed", "agent", w.agentID, "model", w.model, "error", err)
			return "❌ Error: " + err.Error()
		}
		w.recordUsage(resp)

		if len(resp.ToolCalls) == 0 {
			w.history.Append(providers.Message{Role: "assistant", Content: resp.Content})
			return resp.Content
		}

		names := make([]string, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			names[i] = tc.Name
		}
		content := resp.Content
		if content == "" {
			content = "[Calling tools: " + strings.Join(names, ", ") + "]"
		}
		w.history.Append(providers.Message{Role: "assistant", Content: content, ToolCalls: resp.ToolCalls})

		for _, tc := range resp.ToolCalls {
			result := w.handleToolCall(ctx, tc)
			w.history.Append(providers.Message{
				Role:       "tool",
				Content:    result,
				ToolName:   tc.Name,
				ToolCallID: tc.ID,
			})
		}
	}

	reply := "Maximum tool call rounds reached."
	w.history.Append(providers.Message{Role: "assistant", Content: reply})
	return reply
}

func (w *Worker) chatOptions() map[string]interface{} {
	opts := make(map[string]interface{})
	if w.cfg.LLM.Temperature > 0 {
		opts[providers.OptTemperature] = w.cfg.LLM.Temperature
	}
	if w.cfg.LLM.MaxOutputTokens > 0 {
		opts[providers.OptMaxTokens] = w.cfg.LLM.MaxOutputTokens
	}
	return opts
}

// recordUsage books every call. Responses without usage metadata are
// recorded with zero counts so the request itself still shows up.
func (w *Worker) recordUsage(resp *providers.ChatResponse) {
	model := resp.Model
	if model == "" {
		model = w.model
	}
	var prompt, completion int
	if resp.Usage != nil {
		prompt = resp.Usage.PromptTokens
		completion = resp.Usage.CompletionTokens
	}
	w.tracker.Record(model, prompt, completion)
}

func (w *Worker) maybeCompress(ctx context.Context) {
	if !w.history.NeedsCompression() {
		return
	}
	model := w.cfg.Context.CompressModel
	if model == "" {
		model = w.model
	}
	prov, err := w.providerFor(model)
	if err != nil {
		slog.Warn("compression provider unavailable", "agent", w.agentID, "error", err)
		return
	}
	if w.history.Compress(ctx, prov) {
		slog.Info("context compressed", "agent", w.agentID,
			"count", w.history.CompressionCount(), "tokens", w.history.EstimatedTokens())
	} else {
		slog.Warn("context compression failed", "agent", w.agentID)
	}
}

func (w *Worker) providerFor(model string) (providers.Provider, error) {
	name := models.ResolveProvider(model, w.cfg.LLM.DefaultProvider)
	if p, ok := w.cache[name]; ok {
		return p, nil
	}
	p, err := w.newProvider(name)
	if err != nil {
		return nil, err
	}
	w.cache[name] = p
	return p, nil
}

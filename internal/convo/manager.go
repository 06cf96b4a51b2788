// Package convo manages a conversation's message history: token estimation,
// threshold-triggered compression, and reset. The history never includes the
// system prompt, which is composed fresh on every turn.
package convo

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/seaturtle/internal/bus"
	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/providers"
)

const compressedSummaryPrefix = "[Compressed context summary]\n"

// Manager holds one agent's conversation history. It is not safe for
// concurrent use; the worker loop is the only caller.
type Manager struct {
	cfg              config.ContextConfig
	messages         []providers.Message
	compressionCount int
}

func NewManager(cfg config.ContextConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Append adds a message to the history.
func (m *Manager) Append(msg providers.Message) {
	m.messages = append(m.messages, msg)
}

// Messages returns a copy of the history.
func (m *Manager) Messages() []providers.Message {
	out := make([]providers.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *Manager) Len() int { return len(m.messages) }

// Reset clears the history. The compression count survives so stats keep
// reporting lifetime compressions.
func (m *Manager) Reset() {
	m.messages = nil
}

func (m *Manager) CompressionCount() int { return m.compressionCount }

// EstimatedTokens returns a cheap token estimate for the whole history:
// ASCII counts a quarter token per byte, everything else half.
func (m *Manager) EstimatedTokens() int {
	total := 0
	for _, msg := range m.messages {
		total += estimateTokens(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += estimateTokens(tc.Name)
			total += estimateTokens(fmt.Sprintf("%v", tc.Arguments))
		}
	}
	return total
}

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	ascii, other := 0, 0
	for _, r := range s {
		if r < 128 {
			ascii++
		} else {
			other++
		}
	}
	return ascii/4 + other/2 + 1
}

// NeedsCompression reports whether the history has crossed the compression
// threshold.
func (m *Manager) NeedsCompression() bool {
	limit := int(float64(m.cfg.MaxTokens) * m.cfg.CompressThresholdRatio)
	return m.EstimatedTokens() >= limit
}

// Compress summarizes the older half of the history via the configured
// compression model and replaces it with a single system message. Returns
// false, with the history untouched, when there is nothing to compress or
// the LLM call fails.
func (m *Manager) Compress(ctx context.Context, provider providers.Provider) bool {
	if len(m.messages) < 4 {
		return false
	}

	mid := len(m.messages) / 2
	older := m.messages[:mid]
	recent := m.messages[mid:]

	summary, err := m.summarize(ctx, provider, older)
	if err != nil || summary == "" {
		return false
	}

	compressed := make([]providers.Message, 0, len(recent)+1)
	compressed = append(compressed, providers.Message{
		Role:    "system",
		Content: compressedSummaryPrefix + summary,
	})
	compressed = append(compressed, recent...)
	m.messages = compressed
	m.compressionCount++
	return true
}

func (m *Manager) summarize(ctx context.Context, provider providers.Provider, older []providers.Message) (string, error) {
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation concisely, preserving key facts, decisions, and any pending tasks:\n\n")
	for _, msg := range older {
		content := msg.Content
		if content == "" && len(msg.ToolCalls) > 0 {
			names := make([]string, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				names[i] = tc.Name
			}
			content = "[called tools: " + strings.Join(names, ", ") + "]"
		}
		if len(content) > 500 {
			content = content[:500]
		}
		fmt.Fprintf(&sb, "**%s**: %s\n", msg.Role, content)
	}

	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "user", Content: sb.String()},
		},
		Model: m.cfg.CompressModel,
		Options: map[string]interface{}{
			providers.OptTemperature: 0.3,
			providers.OptMaxTokens:   2000,
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// Stats snapshots the context state for reporting.
func (m *Manager) Stats(model string) bus.ContextStats {
	est := m.EstimatedTokens()
	pct := 0.0
	if m.cfg.MaxTokens > 0 {
		pct = float64(est) / float64(m.cfg.MaxTokens) * 100
	}
	return bus.ContextStats{
		Model:            model,
		Messages:         len(m.messages),
		EstimatedTokens:  est,
		MaxTokens:        m.cfg.MaxTokens,
		UsagePercent:     pct,
		CompressionCount: m.compressionCount,
	}
}

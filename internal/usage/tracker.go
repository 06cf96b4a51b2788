// Package usage records per-agent token consumption and derives USD cost
// from the model registry. Records append to a line-delimited JSON log so
// totals survive restarts; write failures never propagate to callers.
package usage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/seaturtle/internal/models"
)

// Record is one line in the usage log.
type Record struct {
	Timestamp    string  `json:"timestamp"`
	AgentID      string  `json:"agent_id"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Totals aggregates usage, optionally per model.
type Totals struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Requests     int
	ByModel      map[string]*Totals
}

// Tracker accumulates session counters and appends to the agent's log file.
// Safe for concurrent use.
type Tracker struct {
	agentID string
	logFile string

	mu      sync.Mutex
	session Totals
}

// NewTracker creates a tracker whose log lives at
// <dataDir>/agents/<agentID>/token_usage.json.
func NewTracker(dataDir, agentID string) *Tracker {
	return &Tracker{
		agentID: agentID,
		logFile: filepath.Join(dataDir, "agents", agentID, "token_usage.json"),
	}
}

// Record books one LLM call and returns its cost. Unknown models cost 0.
func (t *Tracker) Record(model string, inputTokens, outputTokens int) float64 {
	var cost float64
	if in, out, ok := models.Pricing(model); ok {
		cost = float64(inputTokens)/1e6*in + float64(outputTokens)/1e6*out
	}

	t.mu.Lock()
	t.session.InputTokens += inputTokens
	t.session.OutputTokens += outputTokens
	t.session.CostUSD += cost
	t.session.Requests++
	t.mu.Unlock()

	t.appendToLog(Record{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		AgentID:      t.agentID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
	})
	return cost
}

// SessionUsage snapshots the counters for the current process lifetime.
func (t *Tracker) SessionUsage() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session
	s.ByModel = nil
	return s
}

// TotalUsage streams the log file and aggregates all recorded calls,
// grouped by model. A missing or partially corrupt log yields whatever
// parsed cleanly.
func (t *Tracker) TotalUsage() Totals {
	totals := Totals{ByModel: make(map[string]*Totals)}

	f, err := os.Open(t.logFile)
	if err != nil {
		return totals
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		totals.InputTokens += rec.InputTokens
		totals.OutputTokens += rec.OutputTokens
		totals.CostUSD += rec.CostUSD
		totals.Requests++

		model := rec.Model
		if model == "" {
			model = "unknown"
		}
		m, ok := totals.ByModel[model]
		if !ok {
			m = &Totals{}
			totals.ByModel[model] = m
		}
		m.InputTokens += rec.InputTokens
		m.OutputTokens += rec.OutputTokens
		m.CostUSD += rec.CostUSD
		m.Requests++
	}
	return totals
}

// Format renders totals as the "📊 Token Usage" chat block.
func (t *Tracker) Format(u Totals) string {
	lines := []string{
		fmt.Sprintf("📊 Token Usage (Agent: %s)", t.agentID),
		fmt.Sprintf("  Requests: %d", u.Requests),
		fmt.Sprintf("  Input tokens: %s", groupDigits(u.InputTokens)),
		fmt.Sprintf("  Output tokens: %s", groupDigits(u.OutputTokens)),
		fmt.Sprintf("  Total cost: $%.4f", u.CostUSD),
	}
	if len(u.ByModel) > 0 {
		lines = append(lines, "  By model:")
		names := make([]string, 0, len(u.ByModel))
		for name := range u.ByModel {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := u.ByModel[name]
			lines = append(lines, fmt.Sprintf("    %s: %d calls, %s+%s tokens, $%.4f",
				name, s.Requests, groupDigits(s.InputTokens), groupDigits(s.OutputTokens), s.CostUSD))
		}
	}
	return strings.Join(lines, "\n")
}

func (t *Tracker) appendToLog(rec Record) {
	if err := os.MkdirAll(filepath.Dir(t.logFile), 0o755); err != nil {
		slog.Warn("usage log dir", "error", err)
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f, err := os.OpenFile(t.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("usage log open", "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		slog.Warn("usage log write", "error", err)
	}
}

// groupDigits formats n with thousands separators (1234567 → "1,234,567").
func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

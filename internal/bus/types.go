// Package bus defines the message envelopes exchanged between the daemon
// and agent worker processes. Envelopes cross a process boundary as one
// JSON object per line, so every field must be serializable.
package bus

// CommandType tags an inbound envelope (daemon → worker).
type CommandType string

const (
	CmdMessage      CommandType = "message"
	CmdSetModel     CommandType = "set_model"
	CmdResetContext CommandType = "reset_context"
	CmdGetStats     CommandType = "get_stats"
	CmdShutdown     CommandType = "shutdown"
)

// Command is an envelope delivered to a worker's inbox.
type Command struct {
	Type      CommandType `json:"type"`
	Content   string      `json:"content,omitempty"`
	Source    string      `json:"source,omitempty"`
	ChatID    string      `json:"chat_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Model     string      `json:"model,omitempty"`      // set_model
	RequestID string      `json:"request_id,omitempty"` // get_stats correlation
}

// EventType tags an outbound envelope (worker → daemon).
type EventType string

const (
	EventReply EventType = "reply"
	EventStats EventType = "stats"
)

// Event is an envelope published to a worker's outbox.
type Event struct {
	Type      EventType     `json:"type"`
	Content   string        `json:"content,omitempty"`
	Source    string        `json:"source,omitempty"`
	ChatID    string        `json:"chat_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Stats     *ContextStats `json:"stats,omitempty"`
}

// ContextStats is the payload answering a get_stats command.
type ContextStats struct {
	Model            string  `json:"model"`
	Messages         int     `json:"messages"`
	EstimatedTokens  int     `json:"estimated_tokens"`
	MaxTokens        int     `json:"max_tokens"`
	UsagePercent     float64 `json:"usage_percent"`
	CompressionCount int     `json:"compression_count"`
}

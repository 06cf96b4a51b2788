// Package config holds the daemon configuration tree: JSON5 file over
// built-in defaults, environment overrides on top. Read-only after boot.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/nextlevelbuilder/seaturtle/internal/sandbox"
)

// FlexibleStringSlice accepts both ["123"] and [123] in JSON. Chat user ids
// are numeric on Telegram and Discord; configs written by hand use either.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration tree.
type Config struct {
	Global    GlobalConfig           `json:"global"`
	LLM       LLMConfig              `json:"llm"`
	Context   ContextConfig          `json:"context"`
	Shell     ShellConfig            `json:"shell"`
	Heartbeat HeartbeatConfig        `json:"heartbeat"`
	Agents    map[string]AgentConfig `json:"agents"`
}

// GlobalConfig covers daemon-wide settings.
type GlobalConfig struct {
	DefaultAgent string `json:"default_agent"`
	DataDir      string `json:"data_dir"`
	PIDFile      string `json:"pid_file"`
	LogLevel     string `json:"log_level"` // debug, info, warn, error
	LogFile      string `json:"log_file,omitempty"`
}

// ProviderCredential resolves an API key either directly or via an
// environment variable name.
type ProviderCredential struct {
	APIKey    string `json:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
}

// LLMConfig covers provider selection, credentials, and sampling defaults.
type LLMConfig struct {
	DefaultProvider string                        `json:"default_provider"`
	Temperature     float64                       `json:"temperature"`
	MaxOutputTokens int                           `json:"max_output_tokens"`
	Providers       map[string]ProviderCredential `json:"providers,omitempty"`
}

// ContextConfig bounds conversation history.
type ContextConfig struct {
	MaxTokens              int     `json:"max_tokens"`
	CompressThresholdRatio float64 `json:"compress_threshold_ratio"`
	CompressTargetRatio    float64 `json:"compress_target_ratio"`
	CompressModel          string  `json:"compress_model"`
}

// ShellConfig covers the sandboxed executor.
type ShellConfig struct {
	TimeoutSeconds        int      `json:"timeout_seconds"`
	MaxOutputChars        int      `json:"max_output_chars"`
	DangerousCommands     []string `json:"dangerous_commands"`
	BlockedCommands       []string `json:"blocked_commands"`
	HistoryRecordOutput   bool     `json:"history_record_output"`
	HistoryOutputMaxChars int      `json:"history_output_max_chars"`
	HistoryMaxFileSizeMB  int      `json:"history_max_file_size_mb"`
}

// HeartbeatConfig covers the periodic task.md scan.
type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalSeconds int    `json:"interval_seconds"`
	ActiveHoursCron string `json:"active_hours_cron,omitempty"` // optional cron gate, e.g. "* 9-18 * * 1-5"
}

// ChannelCredential is the Telegram-side binding for one agent.
type ChannelCredential struct {
	BotToken       string              `json:"bot_token,omitempty"`
	BotTokenEnv    string              `json:"bot_token_env,omitempty"`
	AllowedUserIDs FlexibleStringSlice `json:"allowed_user_ids,omitempty"`
	OwnerIDs       FlexibleStringSlice `json:"owner_ids,omitempty"`
}

// DiscordCredential extends the channel binding with guild/channel
// allowlists and mention gating.
type DiscordCredential struct {
	ChannelCredential
	AllowedGuildIDs       FlexibleStringSlice `json:"allowed_guild_ids,omitempty"`
	AllowedChannelIDs     FlexibleStringSlice `json:"allowed_channel_ids,omitempty"`
	RespondToMentionsOnly *bool               `json:"respond_to_mentions_only,omitempty"`
}

// AgentConfig binds a persona, workspace, model, and sandbox mode.
type AgentConfig struct {
	Name      string            `json:"name"`
	HumanName string            `json:"human_name"`
	Workspace string            `json:"workspace"`
	Model     string            `json:"model"`
	Tools     []string          `json:"tools"` // subset of shell, memory, task
	Sandbox   string            `json:"sandbox"`
	Telegram  ChannelCredential `json:"telegram,omitempty"`
	Discord   DiscordCredential `json:"discord,omitempty"`
}

// Validate reports configuration errors that should stop the daemon from
// starting, plus per-agent problems that are tolerated at start time.
func (c *Config) Validate() error {
	if c.Global.DefaultAgent == "" {
		return fmt.Errorf("global.default_agent is not set")
	}
	if _, ok := c.Agents[c.Global.DefaultAgent]; !ok {
		return fmt.Errorf("global.default_agent %q has no agent entry", c.Global.DefaultAgent)
	}
	if c.Context.CompressThresholdRatio <= 0 || c.Context.CompressThresholdRatio > 1 {
		return fmt.Errorf("context.compress_threshold_ratio must be in (0,1], got %v", c.Context.CompressThresholdRatio)
	}
	if c.Context.CompressTargetRatio >= c.Context.CompressThresholdRatio {
		return fmt.Errorf("context.compress_target_ratio must be below the threshold ratio")
	}
	for id, a := range c.Agents {
		if a.Workspace == "" {
			return fmt.Errorf("agent %q: workspace is not set", id)
		}
		if _, ok := sandbox.ParseMode(a.Sandbox); !ok {
			return fmt.Errorf("agent %q: unknown sandbox mode %q", id, a.Sandbox)
		}
	}
	return nil
}

// ResolveAgent returns the agent entry with path expansion applied.
func (c *Config) ResolveAgent(id string) (AgentConfig, bool) {
	a, ok := c.Agents[id]
	if !ok {
		return AgentConfig{}, false
	}
	a.Workspace = ExpandHome(a.Workspace)
	return a, true
}

// AgentIDs returns all configured agent IDs in stable order.
func (c *Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for id := range c.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DataDir returns the expanded data directory.
func (c *Config) DataDir() string {
	return ExpandHome(c.Global.DataDir)
}

// PIDFilePath returns the expanded pid file path, defaulting under data_dir.
func (c *Config) PIDFilePath() string {
	if c.Global.PIDFile != "" {
		return ExpandHome(c.Global.PIDFile)
	}
	return filepath.Join(c.DataDir(), "daemon.pid")
}

// ToolEnabled reports whether an agent has a tool in its tool set.
// An empty set enables everything.
func (a AgentConfig) ToolEnabled(name string) bool {
	if len(a.Tools) == 0 {
		return true
	}
	for _, t := range a.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// SandboxMode returns the parsed sandbox mode, defaulting to confined.
func (a AgentConfig) SandboxMode() sandbox.Mode {
	mode, _ := sandbox.ParseMode(a.Sandbox)
	return mode
}

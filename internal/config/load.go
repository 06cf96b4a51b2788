package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Default returns a Config with built-in defaults. User config deep-merges
// over this via JSON5 unmarshalling into the populated struct.
func Default() *Config {
	return &Config{
		Global: GlobalConfig{
			DefaultAgent: "default",
			DataDir:      "~/.seaturtle",
			LogLevel:     "info",
		},
		LLM: LLMConfig{
			DefaultProvider: "google",
			Temperature:     0.7,
			MaxOutputTokens: 4096,
			Providers:       map[string]ProviderCredential{},
		},
		Context: ContextConfig{
			MaxTokens:              100_000,
			CompressThresholdRatio: 0.8,
			CompressTargetRatio:    0.3,
			CompressModel:          "gemini-2.5-flash",
		},
		Shell: ShellConfig{
			TimeoutSeconds: 30,
			MaxOutputChars: 10_000,
			DangerousCommands: []string{
				"rm", "rmdir", "shred",
				"chmod", "chown", "sudo", "su",
				"shutdown", "reboot",
				"mkfs", "fdisk", "dd",
			},
			BlockedCommands: []string{
				"rm -rf /", "rm -rf ~", ":(){",
			},
			HistoryRecordOutput:   true,
			HistoryOutputMaxChars: 500,
			HistoryMaxFileSizeMB:  50,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         true,
			IntervalSeconds: 300,
		},
		Agents: map[string]AgentConfig{
			"default": {
				Name:      "Turtle",
				HumanName: "Human",
				Workspace: "~/.seaturtle/agents/default",
				Model:     "gemini-2.5-flash",
				Tools:     []string{"shell", "memory", "task"},
				Sandbox:   "confined",
			},
		},
	}
}

// Load reads config from a JSON5 file over the defaults, then overlays
// env vars. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// ResolvePath picks the config file: explicit flag, ./config.json,
// ~/.seaturtle/config.json, /etc/seaturtle/config.json. Returns the first
// candidate that exists, or the home location for a fresh install.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return ExpandHome(explicit)
	}
	home, _ := os.UserHomeDir()
	candidates := []string{
		"config.json",
		filepath.Join(home, ".seaturtle", "config.json"),
		"/etc/seaturtle/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return candidates[1]
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setKey := func(provider, env string) {
		if v := os.Getenv(env); v != "" {
			cred := c.LLM.Providers[provider]
			cred.APIKey = v
			c.LLM.Providers[provider] = cred
		}
	}
	if c.LLM.Providers == nil {
		c.LLM.Providers = map[string]ProviderCredential{}
	}
	setKey("google", "SEATURTLE_GOOGLE_API_KEY")
	setKey("openai", "SEATURTLE_OPENAI_API_KEY")
	setKey("anthropic", "SEATURTLE_ANTHROPIC_API_KEY")
	setKey("openrouter", "SEATURTLE_OPENROUTER_API_KEY")
	setKey("xai", "SEATURTLE_XAI_API_KEY")

	envStr("SEATURTLE_DATA_DIR", &c.Global.DataDir)
	envStr("SEATURTLE_LOG_LEVEL", &c.Global.LogLevel)
	envStr("SEATURTLE_DEFAULT_AGENT", &c.Global.DefaultAgent)
	envStr("SEATURTLE_PROVIDER", &c.LLM.DefaultProvider)
}

// ResolveSecret returns value if non-empty, else the named env var,
// else "". An empty result means "not configured".
func ResolveSecret(value, envName string) string {
	if value != "" {
		return value
	}
	if envName != "" {
		return os.Getenv(envName)
	}
	return ""
}

// ProviderKey resolves the API key for a provider through the credential
// pair, falling back to the conventional env var name.
func (c *Config) ProviderKey(provider string) string {
	cred := c.LLM.Providers[provider]
	if key := ResolveSecret(cred.APIKey, cred.APIKeyEnv); key != "" {
		return key
	}
	return ""
}

// ProviderBaseURL returns a configured base URL override for a provider.
func (c *Config) ProviderBaseURL(provider string) string {
	return c.LLM.Providers[provider].BaseURL
}

const secretMask = "***"

// MaskedCopy returns a deep copy with credentials masked, for display.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	cp.LLM.Providers = make(map[string]ProviderCredential, len(c.LLM.Providers))
	for name, cred := range c.LLM.Providers {
		if cred.APIKey != "" {
			cred.APIKey = secretMask
		}
		cp.LLM.Providers[name] = cred
	}
	cp.Agents = make(map[string]AgentConfig, len(c.Agents))
	for id, a := range c.Agents {
		if a.Telegram.BotToken != "" {
			a.Telegram.BotToken = secretMask
		}
		if a.Discord.BotToken != "" {
			a.Discord.BotToken = secretMask
		}
		cp.Agents[id] = a
	}
	return &cp
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}

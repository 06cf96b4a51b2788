package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Global.DefaultAgent != "default" {
		t.Errorf("default agent = %q", cfg.Global.DefaultAgent)
	}
	if cfg.Context.CompressThresholdRatio != 0.8 {
		t.Errorf("threshold = %v", cfg.Context.CompressThresholdRatio)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	// JSON5: comments and trailing commas are accepted.
	content := `{
		// local overrides
		context: { max_tokens: 5000 },
		agents: {
			dev: {
				name: "Dev",
				workspace: "~/work/dev",
				model: "gpt-4o",
				sandbox: "restricted",
				telegram: { allowed_user_ids: [42, "99"] },
			},
		},
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Context.MaxTokens != 5000 {
		t.Errorf("max_tokens = %d", cfg.Context.MaxTokens)
	}
	// Untouched defaults survive the merge.
	if cfg.Shell.TimeoutSeconds != 30 {
		t.Errorf("timeout = %d", cfg.Shell.TimeoutSeconds)
	}
	dev, ok := cfg.Agents["dev"]
	if !ok {
		t.Fatal("dev agent missing")
	}
	if got := []string(dev.Telegram.AllowedUserIDs); len(got) != 2 || got[0] != "42" || got[1] != "99" {
		t.Errorf("allowed_user_ids = %v (numeric ids should coerce to strings)", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEATURTLE_GOOGLE_API_KEY", "env-key")
	t.Setenv("SEATURTLE_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ProviderKey("google") != "env-key" {
		t.Errorf("google key = %q", cfg.ProviderKey("google"))
	}
	if cfg.Global.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.Global.LogLevel)
	}
}

func TestResolveSecret(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "from-env")

	if got := ResolveSecret("direct", "TEST_BOT_TOKEN"); got != "direct" {
		t.Errorf("direct value should win, got %q", got)
	}
	if got := ResolveSecret("", "TEST_BOT_TOKEN"); got != "from-env" {
		t.Errorf("env fallback failed, got %q", got)
	}
	if got := ResolveSecret("", "TEST_MISSING_VAR"); got != "" {
		t.Errorf("missing env should be empty, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Global.DefaultAgent = "ghost"
	if err := cfg.Validate(); err == nil {
		t.Error("missing default agent entry should fail validation")
	}

	cfg = Default()
	a := cfg.Agents["default"]
	a.Sandbox = "relaxed"
	cfg.Agents["default"] = a
	if err := cfg.Validate(); err == nil {
		t.Error("unknown sandbox mode should fail validation")
	}

	cfg = Default()
	cfg.Context.CompressTargetRatio = 0.9
	if err := cfg.Validate(); err == nil {
		t.Error("target ratio above threshold should fail validation")
	}
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.LLM.Providers["openai"] = ProviderCredential{APIKey: "sk-secret"}
	a := cfg.Agents["default"]
	a.Telegram.BotToken = "bot-token"
	cfg.Agents["default"] = a

	masked := cfg.MaskedCopy()
	if masked.LLM.Providers["openai"].APIKey != "***" {
		t.Error("provider key not masked")
	}
	if masked.Agents["default"].Telegram.BotToken != "***" {
		t.Error("bot token not masked")
	}
	// Original untouched.
	if cfg.LLM.Providers["openai"].APIKey != "sk-secret" {
		t.Error("original mutated by MaskedCopy")
	}
}

func TestToolEnabled(t *testing.T) {
	a := AgentConfig{Tools: []string{"memory"}}
	if a.ToolEnabled("shell") {
		t.Error("shell should be disabled")
	}
	if !a.ToolEnabled("memory") {
		t.Error("memory should be enabled")
	}
	if !(AgentConfig{}).ToolEnabled("shell") {
		t.Error("empty tool set should enable everything")
	}
}

package models

import (
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	info, ok := Lookup("gemini-2.5-flash")
	if !ok {
		t.Fatal("expected gemini-2.5-flash in registry")
	}
	if info.Provider != "google" || info.ContextWindow != 1_000_000 {
		t.Errorf("unexpected info: %+v", info)
	}

	if _, ok := Lookup("made-up-model"); ok {
		t.Error("unknown model should not resolve")
	}
}

func TestResolveProvider(t *testing.T) {
	cases := []struct {
		model, def, want string
	}{
		{"gemini-2.5-pro", "openai", "google"},       // registry hit
		{"gemini-99-experimental", "openai", "google"}, // prefix heuristic
		{"gpt-5-preview", "google", "openai"},
		{"o3-pro", "google", "openai"},
		{"o4-mini-high", "google", "openai"},
		{"claude-opus-99", "google", "anthropic"},
		{"grok-9", "google", "xai"},
		{"meta-llama/llama-3-70b", "google", "openrouter"},
		{"mystery-model", "google", "google"},
	}
	for _, c := range cases {
		if got := ResolveProvider(c.model, c.def); got != c.want {
			t.Errorf("ResolveProvider(%q, %q) = %q, want %q", c.model, c.def, got, c.want)
		}
	}
}

func TestPricing(t *testing.T) {
	in, out, ok := Pricing("gpt-4o")
	if !ok || in != 2.50 || out != 10.00 {
		t.Errorf("gpt-4o pricing = (%v, %v, %v)", in, out, ok)
	}
	if _, _, ok := Pricing("unknown"); ok {
		t.Error("unknown model should have no pricing")
	}
}

func TestListFiltersByProvider(t *testing.T) {
	for _, m := range List("xai") {
		if m.Provider != "xai" {
			t.Errorf("List(xai) returned %s model %s", m.Provider, m.Name)
		}
	}
	if len(List("")) != len(List("google"))+len(List("openai"))+len(List("anthropic"))+len(List("xai")) {
		t.Error("List(\"\") should return the union of all providers")
	}
}

func TestFormatListGroupsByProvider(t *testing.T) {
	s := FormatList(List(""))
	for _, header := range []string{"📦 GOOGLE", "📦 OPENAI", "📦 ANTHROPIC", "📦 XAI"} {
		if !strings.Contains(s, header) {
			t.Errorf("missing header %q in:\n%s", header, s)
		}
	}
	if FormatList(nil) != "No models found." {
		t.Error("empty list should render placeholder")
	}
}

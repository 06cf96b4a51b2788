// Package models is the static catalog of known LLM models:
// provider ownership, context windows, and USD pricing per million tokens.
package models

import (
	"fmt"
	"strings"
)

// Info describes one model.
type Info struct {
	Name             string
	Provider         string
	ContextWindow    int
	InputPricePer1M  float64
	OutputPricePer1M float64
	Description      string
}

// SupportedProviders lists provider identifiers in display order.
var SupportedProviders = []string{"google", "openai", "anthropic", "openrouter", "xai"}

var allModels = []Info{
	// Google Gemini
	{"gemini-2.5-pro", "google", 1_000_000, 1.25, 10.0, "Most capable reasoning model"},
	{"gemini-2.5-flash", "google", 1_000_000, 0.15, 0.60, "Best price-performance (default)"},
	{"gemini-2.0-flash", "google", 1_000_000, 0.10, 0.40, "Fast responses"},
	{"gemini-2.0-flash-lite", "google", 1_000_000, 0.075, 0.30, "Lowest cost"},
	{"gemini-1.5-pro", "google", 2_000_000, 1.25, 5.00, "Long context"},
	{"gemini-1.5-flash", "google", 1_000_000, 0.075, 0.30, "Lightweight fast"},

	// OpenAI
	{"gpt-4o", "openai", 128_000, 2.50, 10.00, "Flagship multimodal"},
	{"gpt-4o-mini", "openai", 128_000, 0.15, 0.60, "Small and fast"},
	{"gpt-4.1", "openai", 1_000_000, 2.00, 8.00, "Latest flagship"},
	{"gpt-4.1-mini", "openai", 1_000_000, 0.40, 1.60, "Balanced"},
	{"gpt-4.1-nano", "openai", 1_000_000, 0.10, 0.40, "Fastest and cheapest"},
	{"o3", "openai", 200_000, 10.00, 40.00, "Advanced reasoning"},
	{"o3-mini", "openai", 200_000, 1.10, 4.40, "Efficient reasoning"},
	{"o4-mini", "openai", 200_000, 1.10, 4.40, "Latest reasoning"},

	// Anthropic
	{"claude-sonnet-4-20250514", "anthropic", 200_000, 3.00, 15.00, "Latest Sonnet"},
	{"claude-3.5-sonnet-20241022", "anthropic", 200_000, 3.00, 15.00, "Sonnet 3.5"},
	{"claude-3.5-haiku-20241022", "anthropic", 200_000, 0.80, 4.00, "Fast and affordable"},

	// xAI Grok
	{"grok-3", "xai", 131_072, 3.00, 15.00, "Flagship Grok"},
	{"grok-3-mini", "xai", 131_072, 0.30, 0.50, "Fast Grok"},
}

var byName = func() map[string]Info {
	m := make(map[string]Info, len(allModels))
	for _, info := range allModels {
		m[info.Name] = info
	}
	return m
}()

// Lookup returns the registry entry for a model, if known.
func Lookup(name string) (Info, bool) {
	info, ok := byName[name]
	return info, ok
}

// List returns registry entries, optionally filtered by provider.
// Empty provider returns all models.
func List(provider string) []Info {
	if provider == "" {
		out := make([]Info, len(allModels))
		copy(out, allModels)
		return out
	}
	var out []Info
	for _, m := range allModels {
		if m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// Pricing returns (input, output) prices in USD per million tokens.
// ok is false for models the registry doesn't know.
func Pricing(name string) (in, out float64, ok bool) {
	info, found := byName[name]
	if !found {
		return 0, 0, false
	}
	return info.InputPricePer1M, info.OutputPricePer1M, true
}

// ResolveProvider maps a model name to its provider. Registry entries win;
// otherwise name-prefix heuristics apply, then defaultProvider.
func ResolveProvider(name, defaultProvider string) string {
	if info, ok := byName[name]; ok {
		return info.Provider
	}
	switch {
	case strings.HasPrefix(name, "gemini"):
		return "google"
	case strings.HasPrefix(name, "gpt"), strings.HasPrefix(name, "o3"), strings.HasPrefix(name, "o4"):
		return "openai"
	case strings.HasPrefix(name, "claude"):
		return "anthropic"
	case strings.HasPrefix(name, "grok"):
		return "xai"
	case strings.Contains(name, "/"):
		return "openrouter"
	}
	return defaultProvider
}

// FormatList renders models as a text table grouped by provider,
// suitable for chat replies to /model list.
func FormatList(list []Info) string {
	if len(list) == 0 {
		return "No models found."
	}

	var lines []string
	currentProvider := ""
	for _, m := range list {
		if m.Provider != currentProvider {
			if currentProvider != "" {
				lines = append(lines, "")
			}
			lines = append(lines, "📦 "+strings.ToUpper(m.Provider))
			lines = append(lines, fmt.Sprintf("%-35s %10s %12s %12s", "Model", "Context", "Input $/1M", "Output $/1M"))
			lines = append(lines, strings.Repeat("-", 72))
			currentProvider = m.Provider
		}
		ctx := fmt.Sprintf("%dK", m.ContextWindow/1000)
		if m.ContextWindow >= 1_000_000 {
			ctx = fmt.Sprintf("%dM", m.ContextWindow/1_000_000)
		}
		lines = append(lines, fmt.Sprintf("%-35s %10s %12s %12s",
			m.Name, ctx,
			fmt.Sprintf("$%.3f", m.InputPricePer1M),
			fmt.Sprintf("$%.3f", m.OutputPricePer1M)))
	}
	return strings.Join(lines, "\n")
}

package providers

import "fmt"

// New constructs a provider by name. baseURL and defaultModel are optional
// overrides; empty values keep the provider's built-in defaults.
func New(name, apiKey, baseURL, defaultModel string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider %q: no API key configured", name)
	}

	switch name {
	case "google", "gemini":
		return NewGeminiProvider(apiKey, WithGeminiModel(defaultModel), WithGeminiBaseURL(baseURL)), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, WithAnthropicModel(defaultModel), WithAnthropicBaseURL(baseURL)), nil
	case "openai":
		if defaultModel == "" {
			defaultModel = "gpt-4o-mini"
		}
		return NewOpenAIProvider("openai", apiKey, baseURL, defaultModel), nil
	case "openrouter":
		if defaultModel == "" {
			defaultModel = "anthropic/claude-3.5-sonnet"
		}
		p := NewOpenRouterProvider(apiKey, defaultModel)
		if baseURL != "" {
			return NewOpenAIProvider("openrouter", apiKey, baseURL, defaultModel), nil
		}
		return p, nil
	case "xai":
		if defaultModel == "" {
			defaultModel = "grok-3-mini"
		}
		if baseURL != "" {
			return NewOpenAIProvider("xai", apiKey, baseURL, defaultModel), nil
		}
		return NewXAIProvider(apiKey, defaultModel), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", name)
	}
}

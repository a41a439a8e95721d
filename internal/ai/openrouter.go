package ai

import "strings"

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// OpenRouter speaks the OpenAI chat completions protocol, so the provider is
// a rebranded openAIProvider pointed at a different base URL.
func createOpenRouterFactory(args interface{}) (Provider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return &openAIProvider{
		name:    "openrouter",
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
	}, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}

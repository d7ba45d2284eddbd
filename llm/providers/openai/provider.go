package openai

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/llm/providers"
	"github.com/agentscope-ai/agentscope-go/llm/providers/openaicompat"
)

const (
	defaultBaseURL = "https://api.openai.com"
	fallbackModel  = "gpt-4o"
	providerName   = "openai"
)

// Provider is the OpenAI chat completions client.
type Provider struct {
	*openaicompat.Provider
}

// New creates an OpenAI provider.
func New(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	p := &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:  providerName,
			APIKey:        cfg.APIKey,
			BaseURL:       baseURL,
			DefaultModel:  cfg.Model,
			FallbackModel: fallbackModel,
			Timeout:       cfg.Timeout,
		}, logger),
	}

	if cfg.Organization != "" {
		p.SetBuildHeaders(func(req *http.Request, apiKey string) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
			req.Header.Set("OpenAI-Organization", cfg.Organization)
			req.Header.Set("Content-Type", "application/json")
		})
	}

	return p
}

package doubao

import (
	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/llm/providers"
	"github.com/agentscope-ai/agentscope-go/llm/providers/openaicompat"
)

const (
	defaultBaseURL = "https://ark.cn-beijing.volces.com"
	endpointPath   = "/api/v3/chat/completions"
	modelsEndpoint = "/api/v3/models"
	fallbackModel  = "doubao-1.5-pro-32k"
)

// Provider is the Doubao (Ark) chat client.
type Provider struct {
	*openaicompat.Provider
}

// New creates a Doubao provider.
func New(cfg providers.DoubaoConfig, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:   "doubao",
			APIKey:         cfg.APIKey,
			BaseURL:        baseURL,
			DefaultModel:   cfg.Model,
			FallbackModel:  fallbackModel,
			Timeout:        cfg.Timeout,
			EndpointPath:   endpointPath,
			ModelsEndpoint: modelsEndpoint,
		}, logger),
	}
}

package ollama

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/llm/providers"
	"github.com/agentscope-ai/agentscope-go/llm/providers/openaicompat"
)

const (
	defaultBaseURL = "http://localhost:11434"
	fallbackModel  = "llama3.1"
)

// Provider is the Ollama client.
type Provider struct {
	*openaicompat.Provider
}

// New creates an Ollama provider.
func New(cfg providers.OllamaConfig, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	p := &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:  "ollama",
			BaseURL:       baseURL,
			DefaultModel:  cfg.Model,
			FallbackModel: fallbackModel,
			Timeout:       cfg.Timeout,
		}, logger),
	}

	// Local server, no credentials.
	p.SetBuildHeaders(func(req *http.Request, _ string) {
		req.Header.Set("Content-Type", "application/json")
	})

	return p
}

package dashscope

import (
	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/internal/compress"
	"github.com/agentscope-ai/agentscope-go/llm/providers"
	"github.com/agentscope-ai/agentscope-go/llm/providers/openaicompat"
)

const (
	defaultBaseURL = "https://dashscope.aliyuncs.com"
	endpointPath   = "/compatible-mode/v1/chat/completions"
	modelsEndpoint = "/compatible-mode/v1/models"
	fallbackModel  = "qwen-plus"
)

// Provider is the DashScope compatible-mode client.
type Provider struct {
	*openaicompat.Provider
}

// New creates a DashScope provider. When cfg.CompressRequests is set, request
// bodies above the compression threshold are gzipped with Content-Encoding.
func New(cfg providers.DashScopeConfig, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	compat := openaicompat.Config{
		ProviderName:   "dashscope",
		APIKey:         cfg.APIKey,
		BaseURL:        baseURL,
		DefaultModel:   cfg.Model,
		FallbackModel:  fallbackModel,
		Timeout:        cfg.Timeout,
		EndpointPath:   endpointPath,
		ModelsEndpoint: modelsEndpoint,
	}
	if cfg.CompressRequests {
		compat.EncodeBody = func(payload []byte) ([]byte, string, error) {
			out, applied, err := compress.MaybeGzip(payload)
			if err != nil {
				return nil, "", err
			}
			if !applied {
				return payload, "", nil
			}
			return out, "gzip", nil
		}
	}

	return &Provider{Provider: openaicompat.New(compat, logger)}
}

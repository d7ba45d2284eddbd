package providers

import "time"

// BaseConfig holds the fields every vendor client shares. Embedding it gives
// each provider config APIKey, BaseURL, Model and Timeout without repetition.
type BaseConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	BaseConfig   `yaml:",inline"`
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// AnthropicConfig configures the Anthropic client.
type AnthropicConfig struct {
	BaseConfig `yaml:",inline"`
	// Version is the anthropic-version header value.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// GeminiConfig configures the Google Gemini client.
type GeminiConfig struct {
	BaseConfig `yaml:",inline"`
}

// DashScopeConfig configures the Alibaba DashScope (Qwen) client.
type DashScopeConfig struct {
	BaseConfig `yaml:",inline"`
	// CompressRequests gzips request bodies above the compression threshold.
	CompressRequests bool `json:"compress_requests,omitempty" yaml:"compress_requests,omitempty"`
}

// OllamaConfig configures the local Ollama client. No API key required.
type OllamaConfig struct {
	BaseConfig `yaml:",inline"`
}

// DoubaoConfig configures the ByteDance Doubao (Ark) client.
type DoubaoConfig struct {
	BaseConfig `yaml:",inline"`
}

// DoubaoLiveConfig configures the Doubao realtime voice client.
type DoubaoLiveConfig struct {
	BaseConfig `yaml:",inline"`
	AppID      string `json:"app_id" yaml:"app_id"`
	// SampleRate of outbound PCM audio, default 16000.
	SampleRate int `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	// Voice is the speaker preset requested from the model.
	Voice string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

package config

import (
	"time"

	"github.com/agentscope-ai/agentscope-go/llm/retry"
	"github.com/agentscope-ai/agentscope-go/session"
)

// Default returns the configuration used when nothing else is specified.
// API keys are intentionally empty; they come from the file or environment.
func Default() *Config {
	cfg := &Config{
		Retry: retry.DefaultExecutionConfig(),
		Toolkit: ToolkitConfig{
			DefaultTimeout: 30 * time.Second,
			MaxConcurrency: 5,
		},
		Session: SessionConfig{
			Store:   "memory",
			Manager: session.DefaultManagerConfig(),
			Redis:   session.DefaultRedisConfig(),
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
	}
	cfg.Providers.Default = "openai"
	return cfg
}

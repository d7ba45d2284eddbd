// Package agentscope is the top-level entry point that wires configuration,
// providers, the toolkit and session management together.
//
// Usage:
//
//	client, err := agentscope.New(agentscope.WithConfigFile("agentscope.yaml"))
//	if err != nil { ... }
//	defer client.Close()
//
//	provider, _ := client.Provider("openai")
//	resp, err := provider.Completion(ctx, &llm.ChatRequest{...})
//
// Every piece is usable on its own; this package only assembles them.
package agentscope

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/config"
	"github.com/agentscope-ai/agentscope-go/llm"
	"github.com/agentscope-ai/agentscope-go/llm/observability"
	"github.com/agentscope-ai/agentscope-go/llm/providers"
	"github.com/agentscope-ai/agentscope-go/llm/providers/anthropic"
	"github.com/agentscope-ai/agentscope-go/llm/providers/dashscope"
	"github.com/agentscope-ai/agentscope-go/llm/providers/doubao"
	"github.com/agentscope-ai/agentscope-go/llm/providers/gemini"
	"github.com/agentscope-ai/agentscope-go/llm/providers/ollama"
	"github.com/agentscope-ai/agentscope-go/llm/providers/openai"
	"github.com/agentscope-ai/agentscope-go/session"
	"github.com/agentscope-ai/agentscope-go/toolkit"
)

// Client bundles the configured SDK components.
type Client struct {
	Providers *llm.Registry
	Toolkit   *toolkit.Toolkit
	Sessions  *session.Manager

	cfg    *config.Config
	logger *zap.Logger
}

// Option configures the client created by [New].
type Option func(*options)

type options struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	extra      []llm.Provider
	tracing    bool
	store      session.Store
	registerer prometheus.Registerer
}

// WithConfig supplies a ready-made configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigFile loads configuration from the given YAML file.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger overrides the logger built from the config's log section.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProvider registers an additional pre-built provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.extra = append(o.extra, p) }
}

// WithTracing wraps every provider with OpenTelemetry spans.
func WithTracing() Option {
	return func(o *options) { o.tracing = true }
}

// WithSessionStore overrides the store selected by the config.
func WithSessionStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

// WithMetricsRegisterer sets where toolkit metrics register. Defaults to
// prometheus.DefaultRegisterer when the config enables metrics.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New assembles a Client: configuration, logger, vendor providers with
// retry (and optionally tracing), the toolkit and the session manager.
// Providers are registered only when the config carries credentials for
// them; Ollama needs just a base URL.
func New(opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if o.configPath != "" {
			loader = loader.WithConfigPath(o.configPath)
		}
		loaded, err := loader.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := o.logger
	if logger == nil {
		built, err := cfg.Log.BuildLogger()
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		logger = built
	}

	c := &Client{
		Providers: llm.NewRegistry(),
		cfg:       cfg,
		logger:    logger,
	}

	for _, p := range append(configuredProviders(cfg, logger), o.extra...) {
		c.Providers.Register(p.Name(), wrap(p, cfg, o.tracing, logger))
	}
	if def := cfg.Providers.Default; def != "" {
		if _, ok := c.Providers.Get(def); ok {
			if err := c.Providers.SetDefault(def); err != nil {
				return nil, err
			}
		}
	}

	var tkOpts []toolkit.Option
	if cfg.Toolkit.MetricsEnabled {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		tkOpts = append(tkOpts, toolkit.WithMetrics(toolkit.NewMetrics(reg)))
	}
	c.Toolkit = toolkit.New(logger, tkOpts...)

	store, err := buildStore(cfg, o.store, logger)
	if err != nil {
		return nil, err
	}
	c.Sessions = session.NewManager(cfg.Session.Manager, store, logger)

	return c, nil
}

// Config returns the resolved configuration.
func (c *Client) Config() *config.Config { return c.cfg }

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger { return c.logger }

// Provider looks up a registered provider by name.
func (c *Client) Provider(name string) (llm.Provider, error) {
	p, ok := c.Providers.Get(name)
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

// DefaultProvider returns the provider named by providers.default.
func (c *Client) DefaultProvider() (llm.Provider, error) {
	return c.Providers.Default()
}

// Close releases the session manager and its backing store.
func (c *Client) Close() error {
	if c.Sessions == nil {
		return nil
	}
	return c.Sessions.Close()
}

func configuredProviders(cfg *config.Config, logger *zap.Logger) []llm.Provider {
	var out []llm.Provider
	p := cfg.Providers
	if p.OpenAI.APIKey != "" {
		out = append(out, openai.New(p.OpenAI, logger))
	}
	if p.Anthropic.APIKey != "" {
		out = append(out, anthropic.New(p.Anthropic, logger))
	}
	if p.Gemini.APIKey != "" {
		out = append(out, gemini.New(p.Gemini, logger))
	}
	if p.DashScope.APIKey != "" {
		out = append(out, dashscope.New(p.DashScope, logger))
	}
	if p.Doubao.APIKey != "" {
		out = append(out, doubao.New(p.Doubao, logger))
	}
	if p.Ollama.BaseURL != "" {
		out = append(out, ollama.New(p.Ollama, logger))
	}
	return out
}

func wrap(p llm.Provider, cfg *config.Config, tracing bool, logger *zap.Logger) llm.Provider {
	var wrapped llm.Provider = providers.NewRetryableProvider(p, cfg.Retry, logger)
	if tracing {
		wrapped = observability.NewTracingProvider(wrapped, observability.WithLogger(logger))
	}
	return wrapped
}

func buildStore(cfg *config.Config, override session.Store, logger *zap.Logger) (session.Store, error) {
	if override != nil {
		return override, nil
	}
	switch cfg.Session.Store {
	case "redis":
		return session.NewRedisStore(cfg.Session.Redis, logger)
	case "sqlite":
		return session.NewSQLiteStore(cfg.Session.SQLitePath, logger)
	default:
		return session.NewMemoryStore(), nil
	}
}

package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/agentscope-ai/agentscope-go/llm/providers"
	"github.com/agentscope-ai/agentscope-go/llm/retry"
	"github.com/agentscope-ai/agentscope-go/session"
)

// Config is the full SDK configuration.
type Config struct {
	Providers ProvidersConfig       `yaml:"providers"`
	Retry     retry.ExecutionConfig `yaml:"retry"`
	Toolkit   ToolkitConfig         `yaml:"toolkit"`
	Session   SessionConfig         `yaml:"session"`
	Log       LogConfig             `yaml:"log"`
}

// ProvidersConfig holds per-vendor client settings. Default names the
// provider used when a request does not pick one.
type ProvidersConfig struct {
	Default    string                     `yaml:"default"`
	OpenAI     providers.OpenAIConfig     `yaml:"openai"`
	Anthropic  providers.AnthropicConfig  `yaml:"anthropic"`
	Gemini     providers.GeminiConfig     `yaml:"gemini"`
	DashScope  providers.DashScopeConfig  `yaml:"dashscope"`
	Ollama     providers.OllamaConfig     `yaml:"ollama"`
	Doubao     providers.DoubaoConfig     `yaml:"doubao"`
	DoubaoLive providers.DoubaoLiveConfig `yaml:"doubao_live"`
}

// ToolkitConfig tunes tool execution.
type ToolkitConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	MetricsEnabled bool          `yaml:"metrics_enabled"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	// Store backend: memory, redis or sqlite.
	Store      string                `yaml:"store"`
	Manager    session.ManagerConfig `yaml:"manager"`
	Redis      session.RedisConfig   `yaml:"redis"`
	SQLitePath string                `yaml:"sqlite_path"`
}

// LogConfig tunes the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level"`  // debug, info, warn, error
	Format           string   `yaml:"format"` // json or console
	OutputPaths      []string `yaml:"output_paths"`
	EnableCaller     bool     `yaml:"enable_caller"`
	EnableStacktrace bool     `yaml:"enable_stacktrace"`
}

// BuildLogger constructs a zap logger from the log section.
func (lc LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", lc.Level, err)
	}

	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	if len(lc.OutputPaths) > 0 {
		zc.OutputPaths = lc.OutputPaths
	}
	zc.DisableCaller = !lc.EnableCaller
	zc.DisableStacktrace = !lc.EnableStacktrace
	return zc.Build()
}

// Loader loads configuration with defaults, file, env precedence.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the AGENTSCOPE env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTSCOPE"}
}

// WithConfigPath sets the YAML file to load. A missing file is not an error;
// defaults and environment still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := applyEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}
	return cfg, nil
}

// MustLoad loads the file-based configuration or panics.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}
	return nil
}

// applyEnv walks the struct and overrides fields from environment variables.
// Variable names follow the yaml tags, uppercased and joined with
// underscores: AGENTSCOPE_PROVIDERS_OPENAI_API_KEY. Inline-embedded structs
// share their parent's prefix.
func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("yaml")
		if tag == "-" {
			continue
		}

		name, _, _ := strings.Cut(tag, ",")
		inline := strings.Contains(tag, ",inline") || (name == "" && t.Field(i).Anonymous)

		key := prefix
		if !inline {
			if name == "" {
				name = strings.ToLower(t.Field(i).Name)
			}
			key = prefix + "_" + strings.ToUpper(name)
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := applyEnv(field, key); err != nil {
				return err
			}
			continue
		}

		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	default:
		// func fields and other kinds are not env-settable
	}
	return nil
}

var knownProviders = map[string]bool{
	"openai": true, "anthropic": true, "gemini": true,
	"dashscope": true, "ollama": true, "doubao": true,
}

var knownStores = map[string]bool{
	"memory": true, "redis": true, "sqlite": true,
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []string

	if c.Providers.Default != "" && !knownProviders[c.Providers.Default] {
		errs = append(errs, fmt.Sprintf("unknown default provider %q", c.Providers.Default))
	}
	if !knownStores[c.Session.Store] {
		errs = append(errs, fmt.Sprintf("unknown session store %q", c.Session.Store))
	}
	if c.Session.Store == "sqlite" && c.Session.SQLitePath == "" {
		errs = append(errs, "session.sqlite_path is required for the sqlite store")
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry.max_retries must not be negative")
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, "retry.multiplier must be at least 1")
	}
	if c.Toolkit.MaxConcurrency < 1 {
		errs = append(errs, "toolkit.max_concurrency must be at least 1")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation: %s", strings.Join(errs, "; "))
	}
	return nil
}

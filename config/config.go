// Package config loads gateway configuration from a YAML file with
// environment-variable overrides, mirroring the teacher's
// config.NewLoader().WithConfigPath(...).Load() builder.
//
// Priority: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentgateway/gateway/router"
)

// Config is the gateway's full configuration tree.
type Config struct {
	Providers     ProviderPreferences `yaml:"providers" env:"PROVIDERS"`
	Log           LogConfig           `yaml:"log" env:"LOG"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" env:"TELEMETRY"`
}

// ProviderPreferences mirrors spec.md §3's ProviderPreferences: per-provider
// enablement, API keys/base URLs, and a priority used by the router's
// scoring function.
type ProviderPreferences struct {
	Claude     ProviderEntry `yaml:"claude" env:"CLAUDE"`
	Grok       ProviderEntry `yaml:"grok" env:"GROK"`
	Gemini     ProviderEntry `yaml:"gemini" env:"GEMINI"`
	ChatGpt    ProviderEntry `yaml:"chatgpt" env:"CHATGPT"`
	Perplexity ProviderEntry `yaml:"perplexity" env:"PERPLEXITY"`
	NotebookLm ProviderEntry `yaml:"notebooklm" env:"NOTEBOOKLM"`
}

// ToRouterPreferences projects the enabled providers onto the map
// router.New expects, dropping disabled ones entirely so they never
// appear in AvailableProviders.
func (p ProviderPreferences) ToRouterPreferences() map[router.Provider]router.Preferences {
	out := make(map[router.Provider]router.Preferences)
	for provider, entry := range map[router.Provider]ProviderEntry{
		router.ProviderClaude:     p.Claude,
		router.ProviderGrok:       p.Grok,
		router.ProviderGemini:     p.Gemini,
		router.ProviderChatGpt:    p.ChatGpt,
		router.ProviderPerplexity: p.Perplexity,
		router.ProviderNotebookLm: p.NotebookLm,
	} {
		if !entry.Enabled {
			continue
		}
		out[provider] = router.Preferences{Enabled: entry.Enabled, Priority: entry.Priority}
	}
	return out
}

// ProviderEntry is one provider's configuration: whether it's enabled,
// how to reach it, and where it ranks in the router's priority term.
type ProviderEntry struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	Model    string `yaml:"model" env:"MODEL"`
	Priority int    `yaml:"priority" env:"PRIORITY"`
}

// LogConfig controls zap construction. The gateway's logger builder
// always forces output to stderr regardless of this struct's contents,
// since stdout is reserved for JSON-RPC frames (spec.md §6).
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// OrchestratorConfig holds the knobs spec.md §5 calls for but doesn't name
// a struct for: the default per-operation timeout and the bound on
// concurrent adapter sessions.
type OrchestratorConfig struct {
	Headless      bool          `yaml:"headless" env:"HEADLESS"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxConcurrent int           `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
}

// TelemetryConfig controls the otel tracer provider.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the gateway's baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Providers: ProviderPreferences{
			Claude:     ProviderEntry{Enabled: true, Model: "claude-sonnet-4-5-20250929", Priority: 100},
			ChatGpt:    ProviderEntry{Enabled: true, Model: "gpt-5", Priority: 90},
			Gemini:     ProviderEntry{Enabled: true, Model: "gemini-2.5-pro", Priority: 80},
			Grok:       ProviderEntry{Enabled: true, Model: "grok-4", Priority: 70},
			Perplexity: ProviderEntry{Enabled: true, Model: "sonar-pro", Priority: 60},
			NotebookLm: ProviderEntry{Enabled: false, Priority: 50},
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Orchestrator: OrchestratorConfig{
			Timeout:       120 * time.Second,
			MaxConcurrent: 5,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "agent-gateway",
			SampleRate:   0.1,
			OTLPEndpoint: "localhost:4317",
		},
	}
}

// Loader is a builder for loading Config, following the teacher's
// NewLoader().WithConfigPath(...).Load() convention.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader constructs a Loader with the gateway's default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTGATEWAY"}
}

// WithConfigPath sets the YAML file to load, if any.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds a Config: defaults, then YAML file (if set and present),
// then environment variable overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
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
	}
	return nil
}

// Validate checks cross-field invariants the gateway depends on.
func (c *Config) Validate() error {
	var errs []string

	if c.Orchestrator.Timeout <= 0 {
		errs = append(errs, "orchestrator.timeout must be positive")
	}
	if c.Orchestrator.MaxConcurrent <= 0 {
		errs = append(errs, "orchestrator.max_concurrent must be positive")
	}

	anyEnabled := c.Providers.Claude.Enabled || c.Providers.Grok.Enabled ||
		c.Providers.Gemini.Enabled || c.Providers.ChatGpt.Enabled ||
		c.Providers.Perplexity.Enabled || c.Providers.NotebookLm.Enabled
	if !anyEnabled {
		errs = append(errs, "at least one provider must be enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

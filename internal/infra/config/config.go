package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Routing RoutingConfig `yaml:"routing"`
	Store   StoreConfig   `yaml:"store"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
	Agents  []AgentSeed   `yaml:"agents,omitempty"`
}

// RoutingConfig holds agent selection settings.
type RoutingConfig struct {
	// Policy selects the router: "similarity", "pipeline", or "supervisor".
	Policy string `yaml:"policy"`
	// SwitchThreshold is the minimum confidence gap (best minus current)
	// before a similarity-based switch is recommended.
	SwitchThreshold float64 `yaml:"switch_threshold"`
	// TopN bounds Recommend results.
	TopN int `yaml:"top_n"`
	// MaxHistory bounds the prior messages included in each prompt.
	MaxHistory int `yaml:"max_history"`
	// DefaultAgent receives turns when no index is available.
	// Empty means the first registry agent.
	DefaultAgent string `yaml:"default_agent,omitempty"`
	// Pipeline lists stage agent names in order, for the pipeline policy.
	Pipeline []PipelineStageConfig `yaml:"pipeline,omitempty"`
	// Supervisor names the controlling agent, for the supervisor policy.
	Supervisor string `yaml:"supervisor,omitempty"`
	// TurnTimeout bounds one full turn including the LLM call.
	TurnTimeout time.Duration `yaml:"turn_timeout"`
}

// PipelineStageConfig defines one fixed pipeline stage.
type PipelineStageConfig struct {
	Agent string `yaml:"agent"`
	// HaltSentinels are stage replies that end the pipeline early and are
	// surfaced to the user verbatim (e.g. "[request clarification input]").
	HaltSentinels []string `yaml:"halt_sentinels,omitempty"`
}

// AgentSeed defines an agent loaded into the store at first start.
type AgentSeed struct {
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description"`
	SystemPrompt string  `yaml:"system_prompt"`
	Model        string  `yaml:"model,omitempty"`
	Temperature  float64 `yaml:"temperature,omitempty"`
	MaxTokens    int     `yaml:"max_tokens,omitempty"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything in RAM.
	Path string `yaml:"path"`
	// SaveAttempts bounds retries for a failed conversation save.
	SaveAttempts int `yaml:"save_attempts"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig throttles outbound LLM requests.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai" or "bedrock"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{
				{Name: "openai", Type: "openai", Model: "gpt-4o"},
			},
			CircuitBreaker: CircuitBreakerConfig{Enabled: true},
		},
		Routing: RoutingConfig{
			Policy:          "similarity",
			SwitchThreshold: 0.15,
			TopN:            3,
			MaxHistory:      10,
			TurnTimeout:     120 * time.Second,
		},
		Store: StoreConfig{
			Path:         filepath.Join(defaultDataDir(), "switchboard.db"),
			SaveAttempts: 3,
		},
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
	}
}

// defaultDataDir returns the persistent data directory under
// $HOME/.switchboard. Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".switchboard")
}

// Load reads a YAML config from path, applying defaults for missing fields.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides fills API keys from the environment when the config
// leaves them empty, so keys need not live in the file at all.
func applyEnvOverrides(cfg *Config) {
	for i := range cfg.LLM.Providers {
		if cfg.LLM.Providers[i].APIKey == "" {
			cfg.LLM.Providers[i].APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

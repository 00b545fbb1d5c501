package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level process configuration for aria, per SPEC_FULL.md
// §A. It is loaded once at startup by Load and is immutable thereafter —
// the Agent/Model catalog it points at (Catalog.AgentsPath/ModelsPath) is
// the piece of Aria's configuration that is hot-reloadable, handled
// separately by Registry.Sync (spec.md §4.2).
type Config struct {
	Version int `yaml:"version"`

	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	LLM           LLMConfig           `yaml:"llm"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	ChatEngine    ChatEngineConfig    `yaml:"chat_engine"`
	Roundtable    RoundtableConfig    `yaml:"roundtable"`
	Breaker       BreakerConfig       `yaml:"breaker"`
	Kernel        KernelConfig        `yaml:"kernel"`
}

// CatalogConfig points at the YAML/JSON5 source files the Config Registry
// mirrors into Postgres, per spec.md §4.2.
type CatalogConfig struct {
	AgentsPath    string `yaml:"agents_path"`
	ModelsPath    string `yaml:"models_path"`
	ManifestsPath string `yaml:"manifests_path"`
}

// SchedulerConfig configures the tick loop (spec.md §4.7).
type SchedulerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	MaxConcurrentFires int64         `yaml:"max_concurrent_fires"`
}

// ChatEngineConfig configures the turn loop (spec.md §4.5).
type ChatEngineConfig struct {
	MaxToolRounds     int           `yaml:"max_tool_rounds"`
	ContextWindowSoft int           `yaml:"context_window_soft_tokens"`
	TurnTimeout       time.Duration `yaml:"turn_timeout"`
}

// RoundtableConfig configures discussion defaults (spec.md §4.6).
type RoundtableConfig struct {
	DefaultAgentTimeout time.Duration `yaml:"default_agent_timeout"`
	DefaultTotalTimeout time.Duration `yaml:"default_total_timeout"`
	AsyncStatusTTL      time.Duration `yaml:"async_status_ttl"`
}

// BreakerConfig configures the default circuit breaker parameters shared by
// every named breaker the process creates (spec.md §4.1).
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// KernelConfig names the immutable config blobs loaded at startup
// (spec.md §4.8).
type KernelConfig struct {
	Paths map[string]string `yaml:"paths"`
}

// Load reads, merges ($include-resolves), decodes, defaults, and validates
// the process config in one pass, in the teacher's loader style.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyAuthDefaults(&cfg.Auth)
	applyLLMDefaults(&cfg.LLM)
	applyLoggingDefaults(&cfg.Logging)
	applySchedulerDefaults(&cfg.Scheduler)
	applyChatEngineDefaults(&cfg.ChatEngine)
	applyRoundtableDefaults(&cfg.Roundtable)
	applyBreakerDefaults(&cfg.Breaker)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 2 // one retry, per spec.md §9
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Retry.MaxJitter == 0 {
		cfg.Retry.MaxJitter = 250 * time.Millisecond
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applySchedulerDefaults(cfg *SchedulerConfig) {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.MaxConcurrentFires == 0 {
		cfg.MaxConcurrentFires = 20
	}
}

func applyChatEngineDefaults(cfg *ChatEngineConfig) {
	if cfg.MaxToolRounds == 0 {
		cfg.MaxToolRounds = 6
	}
	if cfg.ContextWindowSoft == 0 {
		cfg.ContextWindowSoft = 100_000
	}
	if cfg.TurnTimeout == 0 {
		cfg.TurnTimeout = 5 * time.Minute
	}
}

func applyRoundtableDefaults(cfg *RoundtableConfig) {
	if cfg.DefaultAgentTimeout == 0 {
		cfg.DefaultAgentTimeout = 60 * time.Second
	}
	if cfg.DefaultTotalTimeout == 0 {
		cfg.DefaultTotalTimeout = 10 * time.Minute
	}
	if cfg.AsyncStatusTTL == 0 {
		cfg.AsyncStatusTTL = time.Hour
	}
}

func applyBreakerDefaults(cfg *BreakerConfig) {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout == 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv("ARIA_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("ARIA_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("ARIA_METRICS_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}

	if value := strings.TrimSpace(os.Getenv("DATABASE_URL")); value != "" {
		cfg.Database.URL = value
	}

	if value := strings.TrimSpace(os.Getenv("ARIA_API_KEY")); value != "" {
		cfg.Auth.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("ARIA_JWT_SECRET")); value != "" {
		cfg.Auth.JWTSecret = value
	}

	if value := strings.TrimSpace(os.Getenv("ARIA_LLM_BASE_URL")); value != "" {
		cfg.LLM.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv("ARIA_LLM_API_KEY")); value != "" {
		cfg.LLM.APIKey = value
	}
}

// ConfigValidationError collects every validation issue found so an
// operator sees all of them at once rather than fixing one per run.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if cfg.Database.URL == "" {
		issues = append(issues, "database.url is required")
	}
	if cfg.Auth.APIKey == "" {
		issues = append(issues, "auth.api_key is required")
	}
	if cfg.LLM.BaseURL == "" {
		issues = append(issues, "llm.base_url is required")
	}
	if cfg.Catalog.AgentsPath == "" {
		issues = append(issues, "catalog.agents_path is required")
	}
	if cfg.Catalog.ModelsPath == "" {
		issues = append(issues, "catalog.models_path is required")
	}
	if cfg.ChatEngine.MaxToolRounds <= 0 {
		issues = append(issues, "chat_engine.max_tool_rounds must be > 0")
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		issues = append(issues, "breaker.failure_threshold must be > 0")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(payload)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	return &cfg, nil
}

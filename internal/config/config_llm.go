package config

import "time"

// LLMConfig configures the single OpenAI-compatible proxy endpoint Aria
// calls for every model, per spec.md §1 ("one black-box LLM proxy").
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// RequestTimeout bounds a single completion call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Retry configures the single 5xx retry-with-jitter policy (spec.md §9
	// open question, resolved once here rather than per call site).
	Retry LLMRetryConfig `yaml:"retry"`
}

// LLMRetryConfig bounds the single retry internal/llmproxy performs on a
// 5xx response from the proxy.
type LLMRetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxJitter   time.Duration `yaml:"max_jitter"`
}

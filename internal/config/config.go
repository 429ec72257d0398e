// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./lingora.yaml or ~/.lingora/config.yaml)
//  3. Default values
//
// Error handling uses sentinel errors so callers can check with errors.Is();
// wrap with context using fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidHistoryPairs indicates the server-side history window is out of range.
	ErrInvalidHistoryPairs = errors.New("invalid history pairs")

	// ErrInvalidRewritePairs indicates the rewrite window is out of range.
	ErrInvalidRewritePairs = errors.New("invalid rewrite pairs")

	// ErrInvalidTopK indicates a retrieval depth is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidMaxToolCalls indicates the tool-call budget is out of range.
	ErrInvalidMaxToolCalls = errors.New("invalid max tool calls")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidHTTPAddr indicates the HTTP listen address is invalid.
	ErrInvalidHTTPAddr = errors.New("invalid HTTP address")

	// ErrInvalidMode indicates the run mode is not recognized.
	ErrInvalidMode = errors.New("invalid mode")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

// Run modes for the answering pipeline.
const (
	// ModeAgent runs the bounded tool-calling loop for learning turns.
	ModeAgent = "agent"

	// ModeSingleShot skips the loop: one routed retrieval, then composition.
	ModeSingleShot = "single-shot"
)

// DefaultGeminiEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 outputs 3072 dimensions by default but supports
// truncation to 768 via OutputDimensionality; the pgvector schema uses
// 768 dimensions (knowledge.VectorDimension).
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Mode selects the answering pipeline: "agent" or "single-shot".
	Mode string `mapstructure:"mode" json:"mode"`

	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "llama3.3"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Orchestration tunables
	HistoryPairs int `mapstructure:"history_pairs" json:"history_pairs"` // server-side memory window, in pairs
	RewritePairs int `mapstructure:"rewrite_pairs" json:"rewrite_pairs"` // pairs shown to the query rewriter
	MaxToolCalls int `mapstructure:"max_tool_calls" json:"max_tool_calls"`

	// Retrieval configuration
	EmbedderModel  string `mapstructure:"embedder_model" json:"embedder_model"`
	CuratedTopK    int    `mapstructure:"curated_top_k" json:"curated_top_k"`         // per curated-collection search
	SingleShotTopK int    `mapstructure:"single_shot_top_k" json:"single_shot_top_k"` // deeper search for the one-shot path

	// Web search (Tavily-compatible endpoint)
	WebSearch WebSearchConfig `mapstructure:"web_search" json:"web_search"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration (serve mode)
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	// Observability configuration
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// WebSearchConfig configures the web search fallback tool.
type WebSearchConfig struct {
	Endpoint   string `mapstructure:"endpoint" json:"endpoint"`
	APIKey     string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	MaxResults int    `mapstructure:"max_results" json:"max_results"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // host:port of the OTLP HTTP collector
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("lingora")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".lingora"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults", "config_name", "lingora.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeAgent)

	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.3)
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Orchestration defaults
	v.SetDefault("history_pairs", 10)
	v.SetDefault("rewrite_pairs", 2)
	v.SetDefault("max_tool_calls", 5)

	// Retrieval defaults
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("curated_top_k", 4)
	v.SetDefault("single_shot_top_k", 10)

	// Web search defaults
	v.SetDefault("web_search.endpoint", "https://api.tavily.com/search")
	v.SetDefault("web_search.max_results", 3)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "lingora")
	v.SetDefault("postgres_password", "lingora_dev_password")
	v.SetDefault("postgres_db_name", "lingora")
	v.SetDefault("postgres_ssl_mode", "disable")

	// HTTP defaults
	v.SetDefault("http_addr", ":8080")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "lingora")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("mode", "LINGORA_MODE")
	mustBind("provider", "LINGORA_PROVIDER")
	mustBind("model_name", "LINGORA_MODEL_NAME")
	mustBind("ollama_host", "LINGORA_OLLAMA_HOST")
	mustBind("http_addr", "LINGORA_HTTP_ADDR")
	mustBind("web_search.api_key", "TAVILY_API_KEY")
	mustBind("tracing.enabled", "LINGORA_TRACING_ENABLED")
	mustBind("tracing.endpoint", "LINGORA_TRACING_ENDPOINT")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validation checks its presence based on the selected provider.
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Mode != ModeAgent && c.Mode != ModeSingleShot {
		return fmt.Errorf("%w: %q, must be %q or %q", ErrInvalidMode, c.Mode, ModeAgent, ModeSingleShot)
	}

	if c.Provider == ProviderGemini && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.HistoryPairs < 1 || c.HistoryPairs > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidHistoryPairs, c.HistoryPairs)
	}

	if c.RewritePairs < 0 || c.RewritePairs > c.HistoryPairs {
		return fmt.Errorf("%w: must be between 0 and history_pairs (%d), got %d",
			ErrInvalidRewritePairs, c.HistoryPairs, c.RewritePairs)
	}

	if c.MaxToolCalls < 1 || c.MaxToolCalls > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d", ErrInvalidMaxToolCalls, c.MaxToolCalls)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.CuratedTopK < 1 || c.CuratedTopK > 20 {
		return fmt.Errorf("%w: curated_top_k must be between 1 and 20, got %d", ErrInvalidTopK, c.CuratedTopK)
	}

	if c.SingleShotTopK < 1 || c.SingleShotTopK > 50 {
		return fmt.Errorf("%w: single_shot_top_k must be between 1 and 50, got %d", ErrInvalidTopK, c.SingleShotTopK)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "lingora_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password for production deployments")
	}

	// Modern SSL modes only; allow/prefer are deprecated.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: http_addr cannot be empty", ErrInvalidHTTPAddr)
	}

	return nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	if c.Provider == ProviderOllama {
		return ProviderOllama + "/" + c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked to prevent substring matching; longer secrets keep
// the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.WebSearch.APIKey = maskSecret(a.WebSearch.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

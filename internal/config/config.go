// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.groundsql/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: embedding provider and model selection
//   - Storage: PostgreSQL connection (see storage.go)
//   - Knowledge: vector collections, chunking and retrieval tuning
//   - Reconciliation: sweep interval for index repair
//   - Observability: Datadog APM tracing (see observability.go)
//
// Security: sensitive data (passwords, API keys) is never logged; the config
// directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidCollection indicates a vector collection name is invalid.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidChunking indicates the chunk size/overlap pair is invalid.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidRateLimit indicates the embedding rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid embed rate limit")

	// ErrInvalidInterval indicates the reconcile interval is out of range.
	ErrInvalidInterval = errors.New("invalid reconcile interval")
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation to 768 via OutputDimensionality (Matryoshka Representation
	// Learning). Our pgvector schema uses 768 dimensions; see vector.Dimension.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultGoldenCollection holds embedded golden question/SQL pairs.
	DefaultGoldenCollection = "golden_sqls"

	// DefaultContextFilesCollection holds embedded context file chunks.
	DefaultContextFilesCollection = "context_files"
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Embedding provider configuration
	Provider      string `mapstructure:"provider" json:"provider"` // "googleai" (default) or "ollama"
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Knowledge configuration: vector collections, chunking and retrieval
	GoldenCollection       string `mapstructure:"golden_collection" json:"golden_collection"`
	ContextFilesCollection string `mapstructure:"context_files_collection" json:"context_files_collection"`
	ChunkSize              int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap           int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	RetrievalTopK          int    `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// EmbedRateLimit caps embedding calls per second across the process.
	EmbedRateLimit float64 `mapstructure:"embed_rate_limit" json:"embed_rate_limit"`

	// ReconcileInterval is the period between index repair sweeps.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" json:"reconcile_interval"`

	// Observability configuration (see observability.go for type definition)
	Datadog DatadogConfig `mapstructure:"datadog" json:"datadog"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.groundsql/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".groundsql")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Embedding defaults
	viper.SetDefault("provider", ProviderGoogleAI)
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "groundsql")
	viper.SetDefault("postgres_password", "groundsql_dev_password")
	viper.SetDefault("postgres_db_name", "groundsql")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Knowledge defaults
	viper.SetDefault("golden_collection", DefaultGoldenCollection)
	viper.SetDefault("context_files_collection", DefaultContextFilesCollection)
	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 50)
	viper.SetDefault("retrieval_top_k", 3)

	// Embedding API budget
	viper.SetDefault("embed_rate_limit", 5.0)

	// Reconciliation defaults
	viper.SetDefault("reconcile_interval", "1h")

	// Datadog defaults
	viper.SetDefault("datadog.agent_host", "localhost:4318")
	viper.SetDefault("datadog.environment", "dev")
	viper.SetDefault("datadog.service_name", "groundsql")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets stay out of Viper where possible:
//  1. GEMINI_API_KEY - read directly by Genkit (not via Viper), validated in cfg.Validate()
//  2. DD_API_KEY - Datadog API key (optional, for observability)
//  3. DATABASE_URL - parsed separately in parseDatabaseURL()
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Datadog API key (optional, for observability)
	mustBind("datadog.api_key", "DD_API_KEY")

	// Embedding provider overrides
	mustBind("provider", "GROUNDSQL_PROVIDER")
	mustBind("embedder_model", "GROUNDSQL_EMBEDDER_MODEL")
	mustBind("ollama_host", "GROUNDSQL_OLLAMA_HOST")

	// Reconcile sweep override (useful for operators running one-off sweeps)
	mustBind("reconcile_interval", "GROUNDSQL_RECONCILE_INTERVAL")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validation checks its presence based on the selected provider in cfg.Validate()
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// Previous attempts:
// - "****" failed: passwords with "*" leaked
// - "[REDACTED]" failed: passwords with "A", "D", "E", etc. leaked
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
// For longer secrets, shows partial chars with unique separator.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	// Example attack: input "00***" → output "00******" contains "00***"
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	// Example: "my_long_secret_key_123" → "my<████████>23"
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - Datadog.APIKey (via DatadogConfig.MarshalJSON)
//
// When adding new sensitive fields, update this method or the nested struct's
// MarshalJSON. The tests will remind you.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullEmbedderName returns the provider-qualified embedder name for Genkit.
// Examples: "googleai/gemini-embedding-001", "ollama/nomic-embed-text".
func (c *Config) FullEmbedderName() string {
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.EmbedderModel
	default:
		return ProviderGoogleAI + "/" + c.EmbedderModel
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

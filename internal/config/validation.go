package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 0. Check for nil config (defensive programming)
	if c == nil {
		return ErrConfigNil
	}

	// 1. Embedding provider validation
	switch c.Provider {
	case ProviderGoogleAI:
		// API key is required only when Google AI does the embedding.
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty when provider is %q",
				ErrInvalidOllamaHost, ProviderOllama)
		}
	default:
		return fmt.Errorf("%w: %q is not supported, must be one of: %v",
			ErrInvalidProvider, c.Provider, []string{ProviderGoogleAI, ProviderOllama})
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 2. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// Warn on the default dev password but don't block - user might be in dev.
	if c.PostgresPassword == "groundsql_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	// Reference: https://www.postgresql.org/docs/current/libpq-ssl.html
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 3. Knowledge configuration validation
	if c.GoldenCollection == "" {
		return fmt.Errorf("%w: golden_collection cannot be empty", ErrInvalidCollection)
	}
	if c.ContextFilesCollection == "" {
		return fmt.Errorf("%w: context_files_collection cannot be empty", ErrInvalidCollection)
	}
	// The two corpora share one table partitioned by collection; they must
	// not collide.
	if c.GoldenCollection == c.ContextFilesCollection {
		return fmt.Errorf("%w: golden_collection and context_files_collection must differ, both are %q",
			ErrInvalidCollection, c.GoldenCollection)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got overlap %d for size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.RetrievalTopK)
	}

	// 4. Embedding budget validation
	if c.EmbedRateLimit <= 0 {
		return fmt.Errorf("%w: must be positive, got %g", ErrInvalidRateLimit, c.EmbedRateLimit)
	}

	// 5. Reconciliation validation
	if c.ReconcileInterval < time.Minute {
		return fmt.Errorf("%w: must be at least 1m, got %s", ErrInvalidInterval, c.ReconcileInterval)
	}

	return nil
}

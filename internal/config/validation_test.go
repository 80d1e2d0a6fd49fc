package config

import (
	"errors"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate().
func validConfig() *Config {
	return &Config{
		Provider:               ProviderGoogleAI,
		EmbedderModel:          DefaultGeminiEmbedderModel,
		OllamaHost:             "http://localhost:11434",
		PostgresHost:           "localhost",
		PostgresPort:           5432,
		PostgresUser:           "groundsql",
		PostgresPassword:       "super-secret-password",
		PostgresDBName:         "groundsql",
		PostgresSSLMode:        "disable",
		GoldenCollection:       DefaultGoldenCollection,
		ContextFilesCollection: DefaultContextFilesCollection,
		ChunkSize:              1000,
		ChunkOverlap:           50,
		RetrievalTopK:          3,
		EmbedRateLimit:         5,
		ReconcileInterval:      time.Hour,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{
			name:    "unsupported provider",
			mutate:  func(c *Config) { c.Provider = "openai" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "empty embedder model",
			mutate:  func(c *Config) { c.EmbedderModel = "" },
			wantErr: ErrInvalidEmbedderModel,
		},
		{
			name: "ollama without host",
			mutate: func(c *Config) {
				c.Provider = ProviderOllama
				c.OllamaHost = ""
			},
			wantErr: ErrInvalidOllamaHost,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.PostgresPort = 0 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty database name",
			mutate:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "empty password",
			mutate:  func(c *Config) { c.PostgresPassword = "" },
			wantErr: ErrInvalidPostgresPassword,
		},
		{
			name:    "short password",
			mutate:  func(c *Config) { c.PostgresPassword = "short" },
			wantErr: ErrInvalidPostgresPassword,
		},
		{
			name:    "deprecated ssl mode",
			mutate:  func(c *Config) { c.PostgresSSLMode = "prefer" },
			wantErr: ErrInvalidPostgresSSLMode,
		},
		{
			name:    "empty golden collection",
			mutate:  func(c *Config) { c.GoldenCollection = "" },
			wantErr: ErrInvalidCollection,
		},
		{
			name:    "colliding collections",
			mutate:  func(c *Config) { c.ContextFilesCollection = c.GoldenCollection },
			wantErr: ErrInvalidCollection,
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.ChunkSize = 0 },
			wantErr: ErrInvalidChunking,
		},
		{
			name: "overlap not smaller than size",
			mutate: func(c *Config) {
				c.ChunkSize = 100
				c.ChunkOverlap = 100
			},
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "negative overlap",
			mutate:  func(c *Config) { c.ChunkOverlap = -1 },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "zero top-k",
			mutate:  func(c *Config) { c.RetrievalTopK = 0 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "excessive top-k",
			mutate:  func(c *Config) { c.RetrievalTopK = 100 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.EmbedRateLimit = 0 },
			wantErr: ErrInvalidRateLimit,
		},
		{
			name:    "reconcile interval too short",
			mutate:  func(c *Config) { c.ReconcileInterval = time.Second },
			wantErr: ErrInvalidInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "test-key")

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_APIKey(t *testing.T) {
	t.Run("googleai requires GEMINI_API_KEY", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")

		cfg := validConfig()
		if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("Validate() error = %v, want ErrMissingAPIKey", err)
		}
	})

	t.Run("ollama does not require GEMINI_API_KEY", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")

		cfg := validConfig()
		cfg.Provider = ProviderOllama
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})
}

func TestConfig_Validate_Nil(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() on nil config error = %v, want ErrConfigNil", err)
	}
}

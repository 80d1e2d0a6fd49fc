package cmd

import (
	"fmt"
	"os"

	"github.com/groundsql/groundsql/internal/config"
)

// runVersion displays version information and the effective
// configuration. Config problems are reported, not fatal, so the
// version itself always prints.
func runVersion() {
	fmt.Printf("GroundSQL %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Configuration: unavailable (%v)\n", err)
		return
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Embedder model: %s\n", cfg.EmbedderModel)
	fmt.Printf("  Postgres: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
	fmt.Printf("  Golden collection: %s\n", cfg.GoldenCollection)
	fmt.Printf("  Context files collection: %s\n", cfg.ContextFilesCollection)
	fmt.Printf("  Reconcile interval: %s\n", cfg.ReconcileInterval)

	// Check API Key from environment (don't display full content)
	if cfg.Provider == config.ProviderGoogleAI {
		fmt.Printf("  GEMINI_API_KEY: %s\n", describeKey(os.Getenv("GEMINI_API_KEY")))
	}
}

// describeKey masks a secret down to its edges. Short values report
// presence only.
func describeKey(key string) string {
	if key == "" {
		return "Not set"
	}
	if len(key) < 8 {
		return "(configured)"
	}
	return fmt.Sprintf("%s...%s (configured)", key[:4], key[len(key)-4:])
}

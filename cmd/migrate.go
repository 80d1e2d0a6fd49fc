package cmd

import (
	"fmt"

	"github.com/groundsql/groundsql/db"
	"github.com/groundsql/groundsql/internal/config"
)

// runMigrate applies pending database migrations. It needs only the
// Postgres settings, so the embedder and the rest of the application
// are never touched.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Println("migrations applied")
	return nil
}

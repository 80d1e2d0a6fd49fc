// Package cmd provides CLI commands for GroundSQL.
//
// Commands:
//   - migrate: apply database migrations
//   - golden, instructions, files: curate the knowledge base
//   - ask: assemble retrieval context for a question
//   - finetune: manage fine-tuning jobs and training files
//   - reconcile: repair drift between Postgres and the vector index
//
// Signal handling and graceful shutdown are implemented for all
// commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/groundsql/groundsql/internal/log"
)

// Version information (injected at build time via ldflags).
// These variables are set by the build system and should not be modified directly.
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the GroundSQL CLI application.
func Execute() error {
	// Handle version and help before full initialization so they
	// work even when the config is invalid.
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}
	switch os.Args[1] {
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	}

	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	args := os.Args[2:]
	switch os.Args[1] {
	case "migrate":
		return runMigrate()
	case "golden":
		return runGolden(args)
	case "instructions":
		return runInstructions(args)
	case "files":
		return runFiles(args)
	case "ask":
		return runAsk(args)
	case "finetune":
		return runFinetune(args)
	case "reconcile":
		return runReconcile(args)
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("GroundSQL - Context assembly and knowledge curation for NL-to-SQL")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  groundsql migrate                 Apply database migrations")
	fmt.Println("  groundsql golden <subcommand>     Manage golden question/SQL pairs")
	fmt.Println("  groundsql instructions <sub>      Manage per-connection instructions")
	fmt.Println("  groundsql files <subcommand>      Manage indexed context files")
	fmt.Println("  groundsql ask [flags] <question>  Assemble retrieval context for a question")
	fmt.Println("  groundsql finetune <subcommand>   Manage fine-tuning jobs")
	fmt.Println("  groundsql reconcile [-watch]      Repair store/index divergence")
	fmt.Println("  groundsql --version               Show version information")
	fmt.Println("  groundsql --help                  Show this help")
	fmt.Println()
	fmt.Println("Subcommands:")
	fmt.Println("  golden add [-f file]              Add pairs from a JSON array (default: stdin)")
	fmt.Println("  golden list -connection <id>      List pairs for a connection")
	fmt.Println("  golden remove <id>...             Remove pairs and their embeddings")
	fmt.Println("  instructions add -connection <id> -text <t>")
	fmt.Println("  instructions list [-connection <id>]")
	fmt.Println("  instructions update -text <t> <id>")
	fmt.Println("  instructions remove <id>...")
	fmt.Println("  files add -connection <id> [-name <n>] <path>")
	fmt.Println("  files remove <name>...")
	fmt.Println("  finetune create -connection <id> [-alias <a>] [-provider <p>] [-model <m>] [golden-id...]")
	fmt.Println("  finetune get|cancel <job-id>")
	fmt.Println("  finetune list -connection <id>")
	fmt.Println("  finetune file [-o path] <job-id>  Write the JSONL training file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required for the googleai provider")
	fmt.Println("  DATABASE_URL       Optional: overrides postgres_* settings")
	fmt.Println("  DEBUG              Optional: Enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/groundsql/groundsql")
}

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/groundsql/groundsql/internal/app"
	"github.com/groundsql/groundsql/internal/entity"
)

// runFiles dispatches the context file subcommands. File content lives
// only in the vector index, chunked and embedded; there is no Postgres
// row to keep in sync.
func runFiles(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: groundsql files <add|remove>")
	}
	switch args[0] {
	case "add":
		return runFilesAdd(args[1:])
	case "remove":
		return runFilesRemove(args[1:])
	default:
		return fmt.Errorf("unknown files subcommand: %s", args[0])
	}
}

func runFilesAdd(args []string) error {
	fs := flag.NewFlagSet("files add", flag.ContinueOnError)
	connection := fs.String("connection", "", "database connection id")
	name := fs.String("name", "", "logical file name, defaults to the file's base name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *connection == "" {
		return fmt.Errorf("files add: -connection is required")
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: groundsql files add -connection <id> [-name <n>] <path>")
	}

	path := fs.Arg(0)
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	file := entity.ContextFile{
		ID:             entity.NewObjectID(),
		FileName:       *name,
		DBConnectionID: *connection,
	}
	if file.FileName == "" {
		file.FileName = filepath.Base(path)
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Assembler.AddContextFile(ctx, file, string(content)); err != nil {
			return err
		}
		return printJSON(file)
	})
}

func runFilesRemove(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: groundsql files remove <name>...")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		for _, name := range args {
			if err := a.Assembler.DeleteContextFile(ctx, entity.ContextFile{FileName: name}); err != nil {
				return err
			}
		}
		fmt.Printf("removed %d context file(s)\n", len(args))
		return nil
	})
}

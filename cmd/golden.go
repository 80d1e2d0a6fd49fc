package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/groundsql/groundsql/internal/app"
	"github.com/groundsql/groundsql/internal/entity"
)

// runGolden dispatches the golden SQL subcommands.
func runGolden(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: groundsql golden <add|list|remove>")
	}
	switch args[0] {
	case "add":
		return runGoldenAdd(args[1:])
	case "list":
		return runGoldenList(args[1:])
	case "remove":
		return runGoldenRemove(args[1:])
	default:
		return fmt.Errorf("unknown golden subcommand: %s", args[0])
	}
}

// runGoldenAdd reads a JSON array of golden SQL requests and stores
// each pair together with its embedding.
func runGoldenAdd(args []string) error {
	fs := flag.NewFlagSet("golden add", flag.ContinueOnError)
	file := fs.String("f", "-", "JSON file of golden pairs, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := readInput(*file)
	if err != nil {
		return err
	}
	var reqs []entity.GoldenSQLRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return fmt.Errorf("parsing golden pairs: %w", err)
	}
	if len(reqs) == 0 {
		return fmt.Errorf("no golden pairs in input")
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		records, err := a.Assembler.AddGoldenSQLs(ctx, reqs)
		if err != nil {
			return err
		}
		return printJSON(records)
	})
}

func runGoldenList(args []string) error {
	fs := flag.NewFlagSet("golden list", flag.ContinueOnError)
	connection := fs.String("connection", "", "database connection id")
	page := fs.Int("page", 0, "page number, 0 for all")
	limit := fs.Int("limit", 0, "page size, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *connection == "" {
		return fmt.Errorf("golden list: -connection is required")
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		records, err := a.GoldenSQLs.FindByConnection(ctx, *connection, *page, *limit)
		if err != nil {
			return err
		}
		return printJSON(records)
	})
}

func runGoldenRemove(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: groundsql golden remove <id>...")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Assembler.RemoveGoldenSQLs(ctx, args); err != nil {
			return err
		}
		fmt.Printf("removed %d golden pair(s)\n", len(args))
		return nil
	})
}

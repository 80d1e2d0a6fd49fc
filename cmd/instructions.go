package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/groundsql/groundsql/internal/app"
	"github.com/groundsql/groundsql/internal/entity"
)

// runInstructions dispatches the instruction subcommands. Instructions
// live only in Postgres; there is no embedding to maintain.
func runInstructions(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: groundsql instructions <add|list|update|remove>")
	}
	switch args[0] {
	case "add":
		return runInstructionsAdd(args[1:])
	case "list":
		return runInstructionsList(args[1:])
	case "update":
		return runInstructionsUpdate(args[1:])
	case "remove":
		return runInstructionsRemove(args[1:])
	default:
		return fmt.Errorf("unknown instructions subcommand: %s", args[0])
	}
}

func runInstructionsAdd(args []string) error {
	fs := flag.NewFlagSet("instructions add", flag.ContinueOnError)
	connection := fs.String("connection", "", "database connection id")
	text := fs.String("text", "", "instruction text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *connection == "" || *text == "" {
		return fmt.Errorf("instructions add: -connection and -text are required")
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		ins, err := a.Instructions.Insert(ctx, entity.InstructionRequest{
			Instruction:    *text,
			DBConnectionID: *connection,
		})
		if err != nil {
			return err
		}
		return printJSON(ins)
	})
}

func runInstructionsList(args []string) error {
	fs := flag.NewFlagSet("instructions list", flag.ContinueOnError)
	connection := fs.String("connection", "", "database connection id, empty for all")
	page := fs.Int("page", 0, "page number, 0 for all")
	limit := fs.Int("limit", 0, "page size, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		var (
			records []*entity.Instruction
			err     error
		)
		if *connection == "" {
			records, err = a.Instructions.All(ctx)
		} else {
			records, err = a.Instructions.FindByConnection(ctx, *connection, *page, *limit)
		}
		if err != nil {
			return err
		}
		return printJSON(records)
	})
}

func runInstructionsUpdate(args []string) error {
	fs := flag.NewFlagSet("instructions update", flag.ContinueOnError)
	text := fs.String("text", "", "replacement instruction text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: groundsql instructions update -text <t> <id>")
	}
	if *text == "" {
		return fmt.Errorf("instructions update: -text is required")
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		ins, err := a.Instructions.Update(ctx, fs.Arg(0), entity.UpdateInstructionRequest{
			Instruction: *text,
		})
		if err != nil {
			return err
		}
		return printJSON(ins)
	})
}

func runInstructionsRemove(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: groundsql instructions remove <id>...")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		var removed int64
		for _, id := range args {
			n, err := a.Instructions.DeleteByID(ctx, id)
			if err != nil {
				return fmt.Errorf("removing instruction %s: %w", id, err)
			}
			removed += n
		}
		fmt.Printf("removed %d instruction(s)\n", removed)
		return nil
	})
}

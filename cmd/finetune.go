package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/groundsql/groundsql/internal/app"
	"github.com/groundsql/groundsql/internal/entity"
	"github.com/groundsql/groundsql/internal/finetuning"
)

// runFinetune dispatches the fine-tuning subcommands. Jobs are records
// of an externally executed run; create registers one, file produces
// the JSONL training data the runner uploads.
func runFinetune(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: groundsql finetune <create|get|list|cancel|file>")
	}
	switch args[0] {
	case "create":
		return runFinetuneCreate(args[1:])
	case "get":
		return runFinetuneGet(args[1:])
	case "list":
		return runFinetuneList(args[1:])
	case "cancel":
		return runFinetuneCancel(args[1:])
	case "file":
		return runFinetuneFile(args[1:])
	default:
		return fmt.Errorf("unknown finetune subcommand: %s", args[0])
	}
}

// runFinetuneCreate registers a job. Golden SQL ids given as arguments
// pin the training set; with none, every pair on the connection is used.
func runFinetuneCreate(args []string) error {
	fs := flag.NewFlagSet("finetune create", flag.ContinueOnError)
	connection := fs.String("connection", "", "database connection id")
	alias := fs.String("alias", "", "human-readable name for the tuned model")
	provider := fs.String("provider", "", "base model provider")
	model := fs.String("model", "", "base model name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *connection == "" {
		return fmt.Errorf("finetune create: -connection is required")
	}

	req := entity.FineTuningRequest{
		DBConnectionID: *connection,
		Alias:          *alias,
		BaseLLM: entity.BaseLLM{
			ModelProvider: *provider,
			ModelName:     *model,
		},
		GoldenSQLs: fs.Args(),
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		job, err := a.FineTuning.Create(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(job)
	})
}

func runFinetuneGet(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: groundsql finetune get <job-id>")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		job, err := a.FineTuning.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	})
}

func runFinetuneList(args []string) error {
	fs := flag.NewFlagSet("finetune list", flag.ContinueOnError)
	connection := fs.String("connection", "", "database connection id")
	page := fs.Int("page", 0, "page number, 0 for all")
	limit := fs.Int("limit", 0, "page size, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *connection == "" {
		return fmt.Errorf("finetune list: -connection is required")
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		jobs, err := a.FineTuning.List(ctx, *connection, *page, *limit)
		if err != nil {
			return err
		}
		return printJSON(jobs)
	})
}

func runFinetuneCancel(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: groundsql finetune cancel <job-id>")
	}
	return withApp(func(ctx context.Context, a *app.App) error {
		job, err := a.FineTuning.Cancel(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	})
}

// runFinetuneFile writes the job's JSONL training file. With -o - the
// records go to stdout and the summary line moves to stderr.
func runFinetuneFile(args []string) error {
	fs := flag.NewFlagSet("finetune file", flag.ContinueOnError)
	out := fs.String("o", "", "output path, - for stdout, empty for a generated name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: groundsql finetune file [-o path] <job-id>")
	}
	jobID := fs.Arg(0)

	return withApp(func(ctx context.Context, a *app.App) error {
		path := *out
		if path == "" {
			path = finetuning.TrainingFileName()
		}

		var w io.Writer = os.Stdout
		if path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating %s: %w", path, err)
			}
			defer func() {
				if closeErr := f.Close(); closeErr != nil {
					fmt.Fprintf(os.Stderr, "closing %s: %v\n", path, closeErr)
				}
			}()
			w = f
		}

		written, err := a.FineTuning.BuildTrainingFile(ctx, w, jobID)
		if err != nil {
			return err
		}
		if path == "-" {
			fmt.Fprintf(os.Stderr, "wrote %d training record(s)\n", written)
		} else {
			fmt.Printf("wrote %d training record(s) to %s\n", written, path)
		}
		return nil
	})
}

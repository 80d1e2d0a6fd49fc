package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/groundsql/groundsql/internal/app"
	"github.com/groundsql/groundsql/internal/entity"
)

// runAsk records the question as a prompt and prints the context
// bundle that retrieval assembles for it: similar golden examples,
// the connection's instructions, and matching document chunks.
func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	connection := fs.String("connection", "", "database connection id")
	k := fs.Int("k", 0, "number of examples to retrieve, 0 for the configured default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *connection == "" {
		return fmt.Errorf("ask: -connection is required")
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: groundsql ask -connection <id> [-k N] <question>")
	}
	question := strings.Join(fs.Args(), " ")

	return withApp(func(ctx context.Context, a *app.App) error {
		prompt, err := a.Engine.CreatePrompt(ctx, entity.PromptRequest{
			Text:           question,
			DBConnectionID: *connection,
		})
		if err != nil {
			return err
		}

		bundle, err := a.Engine.AssembleContext(ctx, prompt.ID, *k)
		if err != nil {
			return err
		}
		return printJSON(bundle)
	})
}

package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/groundsql/groundsql/internal/app"
)

// runReconcile repairs divergence between the Postgres golden store
// and the vector index. A file lock keeps concurrent invocations from
// sweeping the same index; the loop itself tolerates overlap, but two
// sweeps doing the same repairs is wasted embedding work.
func runReconcile(args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "keep sweeping on the configured interval until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lockPath, err := reconcileLockPath()
	if err != nil {
		return err
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring reconcile lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another reconcile process holds %s", lockPath)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			slog.Warn("releasing reconcile lock", "error", unlockErr)
		}
	}()

	return withApp(func(ctx context.Context, a *app.App) error {
		if *watch {
			slog.Info("reconcile loop started", "interval", a.Config.ReconcileInterval)
			a.Reconciler.Run(ctx)
			return nil
		}

		report, err := a.Reconciler.RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	})
}

// reconcileLockPath returns the lock file path under the config
// directory, creating the directory if needed.
func reconcileLockPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	dir := filepath.Join(home, ".groundsql")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return filepath.Join(dir, "reconcile.lock"), nil
}

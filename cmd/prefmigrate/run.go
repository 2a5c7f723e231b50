package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/johnwards/prefmigrate/internal/session"
)

var runNoBackup bool

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the migration headlessly",
		Long: `The run command drives a complete migration session from the console:
it takes a backup, runs the migration and records completion. Progress is
printed as it happens.

Example:
  prefmigrate run --legacy-store config.json --legacy-snapshot state.json
  prefmigrate run --no-backup   # a backup was already taken`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHeadless(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&runNoBackup, "no-backup", false, "Confirm the backup without creating one")
	rootCmd.AddCommand(cmd)
}

// consoleHost prints every progress change.
type consoleHost struct {
	out io.Writer
}

func (h consoleHost) ProgressChanged(p session.Progress) {
	fmt.Fprintf(h.out, "[%3d%%] %-16s %s\n", p.Progress, p.Stage, p.Message)
	if p.Error != "" {
		fmt.Fprintf(h.out, "       error: %s\n", p.Error)
	}
}

func (h consoleHost) CloseRequested() {
	fmt.Fprintln(h.out, "migration cancelled")
}

func runHeadless(ctx context.Context, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctrl := a.newController(consoleHost{out: out})
	if _, open := ctrl.Open(ctx); !open {
		fmt.Fprintln(out, "migration already completed, nothing to do")
		return nil
	}

	if snap, err := readSnapshot(); err != nil {
		return err
	} else if snap != nil {
		if err := ctrl.SupplyLegacySnapshot(snap); err != nil {
			return fmt.Errorf("load legacy snapshot: %w", err)
		}
	}

	if err := ctrl.ProceedToBackup(); err != nil {
		return err
	}
	if runNoBackup {
		if err := ctrl.NotifyBackupCompleted(); err != nil {
			return err
		}
	} else {
		res, err := ctrl.RequestBackup(ctx)
		if err != nil {
			return err
		}
		if !res.Success {
			_ = ctrl.CancelMigration()
			return fmt.Errorf("backup failed: %s", res.Error)
		}
		fmt.Fprintf(out, "backup written to %s\n", res.Path)
	}

	// The migration transaction is never interrupted once started.
	if err := ctrl.StartMigration(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if err := ctrl.Wait(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if p := ctrl.GetCurrentProgress(); p.Stage != session.StageCompleted {
		return fmt.Errorf("migration ended in stage %s", p.Stage)
	}
	fmt.Fprintln(out, "restart the application to use the migrated preferences")
	return nil
}

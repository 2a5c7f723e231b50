package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/store"
)

var statusJSON bool

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the migration has run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(cmd)
}

type statusReport struct {
	Needed      bool                    `json:"needed"`
	Marker      *domain.MigrationStatus `json:"marker,omitempty"`
	Preferences int                     `json:"preferences"`
	Items       int                     `json:"items"`
	LegacyKeys  int                     `json:"legacyKeys"`
}

func runStatus(ctx context.Context, out io.Writer) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	report := statusReport{Needed: true, Items: len(a.items), LegacyKeys: a.legacy.Len()}
	st, err := a.store.AppState.MigrationStatus(ctx)
	switch {
	case err == nil:
		report.Marker = st
		report.Needed = !st.Completed
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	keys, err := a.store.Preferences.Keys(ctx)
	if err != nil {
		return err
	}
	report.Preferences = len(keys)

	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if report.Needed {
		fmt.Fprintln(out, "migration: needed")
	} else {
		fmt.Fprintln(out, "migration: completed")
	}
	if m := report.Marker; m != nil && m.CompletedAt != nil {
		fmt.Fprintf(out, "completed at: %s (version %s)\n", time.UnixMilli(*m.CompletedAt).UTC().Format(time.RFC3339), m.Version)
	}
	fmt.Fprintf(out, "preferences: %d\n", report.Preferences)
	fmt.Fprintf(out, "mapping items: %d\n", report.Items)
	fmt.Fprintf(out, "legacy keys: %d\n", report.LegacyKeys)
	return nil
}

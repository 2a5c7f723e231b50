package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/johnwards/prefmigrate/internal/config"
)

var (
	cfg          = config.Load()
	mappingsPath string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "prefmigrate",
	Short: "Migrate legacy preferences into the preference database",
	Long: `prefmigrate moves legacy application settings (a flat JSON store and a
nested client-state snapshot) into the SQLite preference database. The
migration runs once, in a single transaction, after a backup was taken.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Preference database path (PREFMIGRATE_DB)")
	flags.StringVar(&cfg.LegacyStore, "legacy-store", cfg.LegacyStore, "Legacy flat store JSON file (PREFMIGRATE_LEGACY_STORE)")
	flags.StringVar(&cfg.LegacySnapshot, "legacy-snapshot", cfg.LegacySnapshot, "Legacy client-state snapshot JSON file (PREFMIGRATE_LEGACY_SNAPSHOT)")
	flags.StringVar(&cfg.BackupDir, "backup-dir", cfg.BackupDir, "Backup destination directory (PREFMIGRATE_BACKUP_DIR)")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory archived into the backup (PREFMIGRATE_DATA_DIR)")
	flags.BoolVar(&cfg.SkipBackupFiles, "skip-backup-files", cfg.SkipBackupFiles, "Only archive the session payload (PREFMIGRATE_SKIP_BACKUP_FILES)")
	flags.StringVar(&cfg.AppVersion, "app-version", cfg.AppVersion, "Version recorded in the completion marker (PREFMIGRATE_APP_VERSION)")
	flags.StringVar(&mappingsPath, "mappings", "", "Mapping table YAML file; the bundled table is used when empty")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

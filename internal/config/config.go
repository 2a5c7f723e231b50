package config

import (
	"os"
	"strconv"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Addr            string // PREFMIGRATE_ADDR, default ":8080"
	DBPath          string // PREFMIGRATE_DB, default "prefmigrate.db"
	LegacyStore     string // PREFMIGRATE_LEGACY_STORE, default "config.json"
	LegacySnapshot  string // PREFMIGRATE_LEGACY_SNAPSHOT, optional
	BackupDir       string // PREFMIGRATE_BACKUP_DIR, default "backups"
	DataDir         string // PREFMIGRATE_DATA_DIR, optional
	SkipBackupFiles bool   // PREFMIGRATE_SKIP_BACKUP_FILES, default false
	AppVersion      string // PREFMIGRATE_APP_VERSION, default "0.0.0"
	AuthToken       string // PREFMIGRATE_AUTH_TOKEN, optional
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Addr:            envOr("PREFMIGRATE_ADDR", ":8080"),
		DBPath:          envOr("PREFMIGRATE_DB", "prefmigrate.db"),
		LegacyStore:     envOr("PREFMIGRATE_LEGACY_STORE", "config.json"),
		LegacySnapshot:  os.Getenv("PREFMIGRATE_LEGACY_SNAPSHOT"),
		BackupDir:       envOr("PREFMIGRATE_BACKUP_DIR", "backups"),
		DataDir:         os.Getenv("PREFMIGRATE_DATA_DIR"),
		SkipBackupFiles: envBool("PREFMIGRATE_SKIP_BACKUP_FILES", false),
		AppVersion:      envOr("PREFMIGRATE_APP_VERSION", "0.0.0"),
		AuthToken:       os.Getenv("PREFMIGRATE_AUTH_TOKEN"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envBool parses key with strconv.ParseBool. Unset or unparseable values
// yield fallback.
func envBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

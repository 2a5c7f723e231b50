package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/johnwards/prefmigrate/internal/backup"
	"github.com/johnwards/prefmigrate/internal/database"
	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/legacy"
	"github.com/johnwards/prefmigrate/internal/mapping"
	"github.com/johnwards/prefmigrate/internal/metrics"
	"github.com/johnwards/prefmigrate/internal/session"
	"github.com/johnwards/prefmigrate/internal/store"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	db       *sql.DB
	store    *store.Store
	items    []domain.Item
	legacy   *legacy.JSONFileStore
	metrics  *metrics.Collector
	registry *prometheus.Registry
}

func openApp(ctx context.Context) (*app, error) {
	items, err := loadItems()
	if err != nil {
		return nil, err
	}

	legacyStore, err := legacy.OpenJSONFileStore(cfg.LegacyStore)
	if err != nil {
		return nil, fmt.Errorf("open legacy store: %w", err)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	slog.Info("application opened",
		"db", cfg.DBPath,
		"legacy_store", cfg.LegacyStore,
		"legacy_keys", legacyStore.Len(),
		"mapping_items", len(items),
	)
	return &app{
		db:       db,
		store:    store.New(db, clock.WallClock),
		items:    items,
		legacy:   legacyStore,
		metrics:  collector,
		registry: reg,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// newController builds the session controller for host.
func (a *app) newController(host session.Host) *session.Controller {
	dbPath, err := filepath.Abs(cfg.DBPath)
	if err != nil {
		dbPath = cfg.DBPath
	}
	return session.New(session.Config{
		Store:       a.store,
		Items:       a.items,
		LegacyStore: a.legacy,
		Backuper: &backup.FileBackuper{
			DataDir: cfg.DataDir,
			Exclude: []string{dbPath, dbPath + "-wal", dbPath + "-shm"},
		},
		Host:            host,
		Metrics:         a.metrics,
		Version:         cfg.AppVersion,
		BackupDir:       cfg.BackupDir,
		SkipBackupFiles: cfg.SkipBackupFiles,
	})
}

func loadItems() ([]domain.Item, error) {
	if mappingsPath == "" {
		return mapping.Load()
	}
	return mapping.LoadFile(mappingsPath)
}

// readSnapshot returns the configured snapshot document, or nil.
func readSnapshot() ([]byte, error) {
	if cfg.LegacySnapshot == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Clean(cfg.LegacySnapshot))
	if err != nil {
		return nil, fmt.Errorf("read legacy snapshot: %w", err)
	}
	return data, nil
}

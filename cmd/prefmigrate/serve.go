package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/johnwards/prefmigrate/internal/api"
	"github.com/johnwards/prefmigrate/internal/api/admin"
	"github.com/johnwards/prefmigrate/internal/api/migration"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the migration session over HTTP",
		Long: `The serve command hosts the migration session behind an HTTP API. A UI
drives the session through /migration/* and follows progress on the
/migration/events stream.

Example:
  prefmigrate serve --db app.db --legacy-store config.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address (PREFMIGRATE_ADDR)")
	cmd.Flags().StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "Bearer token required by the API (PREFMIGRATE_AUTH_TOKEN)")
	rootCmd.AddCommand(cmd)
}

func runServe(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	events := migration.NewBroadcaster(nil)
	ctrl := a.newController(events)

	if snap, err := readSnapshot(); err != nil {
		return err
	} else if snap != nil {
		if err := ctrl.SupplyLegacySnapshot(snap); err != nil {
			return fmt.Errorf("load legacy snapshot: %w", err)
		}
	}

	mux := http.NewServeMux()
	migration.RegisterRoutes(mux, ctrl, events, nil)
	admin.RegisterRoutes(mux, a.store, a.items, ctrl)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.db.PingContext(r.Context()); err != nil {
			api.WriteError(w, http.StatusServiceUnavailable, api.NewInternalError(err.Error(), api.CorrelationID(r.Context())))
			return
		}
		api.WriteJSON(w, http.StatusOK, api.OK)
	})

	// Catch-all: return 404 in the API error format.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		corrID := api.CorrelationID(r.Context())
		api.WriteError(w, http.StatusNotFound, api.NewNotFoundError(
			fmt.Sprintf("No route found for %s %s", r.Method, r.URL.Path),
			corrID,
		))
	})

	handler := api.Chain(mux,
		api.Recovery(),
		api.RequestID(),
		api.Auth(cfg.AuthToken),
		api.Logging(),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(events.Shutdown)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting prefmigrate server", "addr", cfg.Addr, "migration_needed", ctrl.IsMigrationNeeded(ctx))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}

	// A running migration finishes its transaction before the database closes.
	if err := ctrl.Wait(ctx); err != nil {
		slog.Warn("migration finished with an error", "error", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CMCFame/mermaidivr/internal/api"
	"github.com/CMCFame/mermaidivr/internal/config"
	"github.com/CMCFame/mermaidivr/internal/database"
	"github.com/CMCFame/mermaidivr/internal/database/pgcatalog"
	"github.com/CMCFame/mermaidivr/internal/resolver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting mermaidivr",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"postgres", cfg.PostgresDSN != "",
	)

	// Open the segment catalog store: PostgreSQL if configured, SQLite otherwise.
	repo, closeStore, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open catalog store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	ctx := context.Background()

	// Seed the catalog from CSV if configured and the store is still empty.
	if cfg.SeedCSV != "" {
		if err := seedCatalog(ctx, repo, cfg.SeedCSV); err != nil {
			slog.Error("failed to seed catalog", "error", err)
			os.Exit(1)
		}
	}

	// Build the resolver index from the store. An unreachable or empty
	// catalog is not fatal: the resolver degrades to raw-text plans so
	// diagrams still compile for review.
	catalog, err := resolver.NewCatalogFromRepository(ctx, repo)
	if err != nil {
		slog.Warn("catalog index unavailable, conversions will degrade", "error", err)
		catalog = resolver.NewCatalog(nil)
	}
	slog.Info("catalog index published", "segments", catalog.Size())

	res := resolver.New(catalog, logger)

	handler := api.NewServer(repo, catalog, res, cfg)
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("mermaidivr stopped")
}

// openStore opens the configured catalog backend and returns the repository
// plus a close function.
func openStore(cfg *config.Config) (database.AudioSegmentRepository, func(), error) {
	if cfg.PostgresDSN != "" {
		store, err := pgcatalog.New(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	return database.NewAudioSegmentRepository(db), func() { db.Close() }, nil
}

// seedCatalog imports the CSV file into the store if the store holds no rows
// yet. Restarting with the same seed file does not duplicate the catalog.
func seedCatalog(ctx context.Context, repo database.AudioSegmentRepository, path string) error {
	count, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting catalog rows: %w", err)
	}
	if count > 0 {
		slog.Info("catalog already populated, skipping seed", "rows", count)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	stats, err := database.ImportCSV(ctx, f, repo, "")
	if err != nil {
		return fmt.Errorf("importing seed file: %w", err)
	}

	slog.Info("catalog seeded", "file", path, "imported", stats.Imported, "skipped", stats.Skipped)
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/agent-enroll/internal/app"
	"github.com/tendant/agent-enroll/internal/config"
	"github.com/tendant/agent-enroll/pkg/repository"
)

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Memory          bool          `help:"Use the in-memory store instead of Postgres (development only)."`
	ShutdownTimeout time.Duration `default:"30s" help:"Grace period for in-flight requests on shutdown."`
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	logger := globals.Logger

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	opts := app.Options{Config: cfg, Logger: logger}
	if !c.Memory {
		db, err := repository.NewDB(cfg.Database())
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		logger.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)
		opts.DB = db
	}

	a, err := app.New(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := configureHTTPServer(addr, a.Handler())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr, "version", globals.Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    16 * 1024,
	}
}

// MigrateCmd applies the embedded SQL migrations.
type MigrateCmd struct {
	Direction string `default:"up" enum:"up,down" help:"Migration direction (up or down)."`
}

// Run migrates the configured database.
func (c *MigrateCmd) Run(globals *Globals) error {
	db := config.LoadDatabase()
	err := repository.Migrate(db.DSN(), c.Direction)
	if errors.Is(err, repository.ErrNoChange) {
		globals.Logger.Info("schema already up to date", "direction", c.Direction)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", c.Direction, err)
	}
	globals.Logger.Info("migrations applied", "direction", c.Direction, "database", db.DBName)
	return nil
}

// CleanupSessionsCmd prunes refresh sessions that can no longer be used.
type CleanupSessionsCmd struct {
	OlderThan time.Duration `default:"720h" help:"Keep expired or revoked sessions younger than this."`
}

// Run deletes stale sessions.
func (c *CleanupSessionsCmd) Run(ctx context.Context, globals *Globals) error {
	db, err := repository.NewDB(config.LoadDatabase())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	n, err := repository.NewSessionsRepository(db).DeleteExpired(ctx, c.OlderThan)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	globals.Logger.Info("expired sessions deleted", "count", n)
	return nil
}

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug logging."`
		Version kong.VersionFlag

		Serve           ServeCmd           `cmd:"" help:"Start the HTTP API."`
		Migrate         MigrateCmd         `cmd:"" help:"Apply database migrations."`
		CleanupSessions CleanupSessionsCmd `cmd:"" help:"Delete expired and revoked refresh sessions."`
	}
)

// Globals are shared by every command.
type Globals struct {
	Logger  *slog.Logger
	Version string
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("agent-enroll"),
		kong.Description("Organization provisioning, install credentials and agent registry."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	level := slog.LevelInfo
	if cli.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	err := cmd.Run(&Globals{Logger: logger, Version: version})
	cmd.FatalIfErrorf(err)
}

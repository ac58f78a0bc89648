// Package app wires stores, services and the HTTP router together.
//
// Usage:
//
//	db, _ := repository.NewDB(dbConfig)
//	a, err := app.New(app.Options{Config: cfg, DB: db, Logger: logger})
//	if err != nil {
//	    log.Fatal(err) // Fails if migrations haven't been run
//	}
//	http.ListenAndServe(":8080", a.Handler())
//
// A nil DB selects the in-memory store, which keeps nothing across restarts.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/tendant/agent-enroll/internal/config"
	httpserver "github.com/tendant/agent-enroll/internal/http"
	"github.com/tendant/agent-enroll/pkg/auth"
	"github.com/tendant/agent-enroll/pkg/provision"
	"github.com/tendant/agent-enroll/pkg/registry"
	"github.com/tendant/agent-enroll/pkg/repository"
	"github.com/tendant/agent-enroll/pkg/repository/memory"
)

// Options holds what New needs.
type Options struct {
	// Config is the loaded environment configuration (required).
	Config *config.Config

	// DB is the Postgres connection. Nil selects the in-memory store.
	DB *sql.DB

	// Logger is the structured logger (default: JSON on stdout).
	Logger *slog.Logger
}

type userStore interface {
	auth.UserStore
	provision.UserReader
}

type keyStore interface {
	provision.APIKeyStore
	httpserver.APIKeyStore
}

// App is a fully wired agent enrollment service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	users  userStore
	keys   keyStore
	agents registry.AgentStore

	sessionService *auth.SessionService
	googleService  *auth.GoogleService
	provisioner    *provision.Provisioner
	issuer         *provision.Issuer
	registry       *registry.Registry
}

// New creates an App. With a DB it returns an error if required tables
// don't exist; run the migrate command first.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("app: Config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	cfg := opts.Config

	a := &App{cfg: cfg, logger: logger}

	var (
		orgs     provision.OrganizationCreator
		sessions auth.SessionStore
	)
	if opts.DB != nil {
		if err := validateSchema(opts.DB); err != nil {
			return nil, err
		}
		a.users = repository.NewUsersRepository(opts.DB)
		orgs = repository.NewOrganizationsRepository(opts.DB)
		a.keys = repository.NewAPIKeysRepository(opts.DB)
		a.agents = repository.NewAgentsRepository(opts.DB)
		sessions = repository.NewSessionsRepository(opts.DB)
	} else {
		logger.Warn("using in-memory store: data is lost on restart")
		store := memory.New()
		a.users = store.Users()
		orgs = store.Organizations()
		a.keys = store.APIKeys()
		a.agents = store.Agents()
		sessions = store.Sessions()
	}

	a.provisioner = provision.NewProvisioner(a.users, orgs, logger)
	a.issuer = provision.NewIssuer(a.keys, provision.InstallConfig{
		InstallerBaseURL: cfg.InstallerBaseURL,
		IngestAddress:    cfg.IngestAddress,
	}, logger)
	a.registry = registry.New(a.agents, logger)
	a.sessionService = auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		JWTSecret:       []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
	}, sessions, a.users, a.provisioner, logger)

	if cfg.HasGoogleOAuth() {
		a.googleService = auth.NewGoogleService(auth.GoogleConfig{
			ClientID:        cfg.GoogleClientID,
			ClientSecret:    cfg.GoogleClientSecret,
			RedirectURI:     cfg.GoogleRedirectURI,
			MobileClientIDs: cfg.GoogleMobileClientIDs,
		})
		logger.Info("Google OAuth enabled")
	}

	return a, nil
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:             a.logger,
		SessionService:     a.sessionService,
		GoogleService:      a.googleService,
		Provisioner:        a.provisioner,
		Issuer:             a.issuer,
		Registry:           a.registry,
		Users:              a.users,
		APIKeys:            a.keys,
		AppBaseURL:         a.cfg.AppBaseURL,
		CookieSecure:       a.cfg.CookieSecure,
		CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
		RateLimitConfig:    a.cfg.RateLimit,
		SecurityHeaders:    a.cfg.SecurityHeaders,
		Validation:         a.cfg.Validation,
	})
}

// SessionService returns the session service for advanced usage.
func (a *App) SessionService() *auth.SessionService {
	return a.sessionService
}

// validateSchema checks that required database tables exist.
func validateSchema(db *sql.DB) error {
	requiredTables := []string{"users", "user_identities", "organizations", "api_keys", "agents", "sessions"}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	ctx := context.Background()
	for _, table := range requiredTables {
		var name string
		err := db.QueryRowContext(ctx, query, table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("app: missing table '%s' - run the migrate command first", table)
		}
		if err != nil {
			return fmt.Errorf("app: failed to check schema: %w", err)
		}
	}

	return nil
}

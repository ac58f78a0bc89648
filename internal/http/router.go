package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/internal/config"
	"github.com/tendant/agent-enroll/internal/http/features/agentapi"
	"github.com/tendant/agent-enroll/internal/http/features/apikeys"
	"github.com/tendant/agent-enroll/internal/http/features/google"
	"github.com/tendant/agent-enroll/internal/http/features/installs"
	"github.com/tendant/agent-enroll/internal/http/features/me"
	"github.com/tendant/agent-enroll/internal/http/features/organization"
	"github.com/tendant/agent-enroll/internal/http/features/servers"
	"github.com/tendant/agent-enroll/internal/http/features/session"
	"github.com/tendant/agent-enroll/internal/http/middleware"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/auth"
	"github.com/tendant/agent-enroll/pkg/domain"
	"github.com/tendant/agent-enroll/pkg/provision"
	"github.com/tendant/agent-enroll/pkg/registry"
)

// UserReader reads users with their organization binding.
type UserReader interface {
	GetWithOrganization(ctx context.Context, userID uuid.UUID) (*domain.User, *domain.Organization, error)
}

// APIKeyStore is the key store surface the HTTP layer uses.
type APIKeyStore interface {
	GetByKey(ctx context.Context, value string) (*domain.APIKey, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, orgID, id uuid.UUID) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger             *slog.Logger
	SessionService     *auth.SessionService
	GoogleService      *auth.GoogleService // nil disables Google sign-in
	Provisioner        *provision.Provisioner
	Issuer             *provision.Issuer
	Registry           *registry.Registry
	Users              UserReader
	APIKeys            APIKeyStore
	AppBaseURL         string
	CookieSecure       bool
	CORSAllowedOrigins []string
	RateLimitConfig    config.RateLimitConfig
	SecurityHeaders    config.SecurityHeadersConfig
	Validation         config.ValidationConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	cookieConfig := httputil.NewCookieConfig(cfg.CookieSecure)
	requireAuth := middleware.Auth(cfg.SessionService)

	r.Route("/v1", func(r chi.Router) {
		// Google sign-in (if configured)
		if cfg.GoogleService != nil {
			googleHandler := google.NewHandler(cfg.GoogleService, cfg.SessionService, cookieConfig, cfg.AppBaseURL, cfg.Logger)
			r.Group(func(r chi.Router) {
				r.Use(rateLimiters[middleware.LimiterAuth])
				googleHandler.RegisterRoutes(r)
			})
		} else {
			cfg.Logger.Warn("Google OAuth not configured: sign-in routes disabled")
		}

		session.NewHandler(cfg.SessionService, cookieConfig, cfg.Logger).
			RegisterRoutes(r, rateLimiters[middleware.LimiterRefresh], requireAuth)

		// Authenticated, organization optional
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(rateLimiters[middleware.LimiterAPI])
			me.NewHandler(cfg.Logger, cfg.Users).RegisterRoutes(r)
			organization.NewHandler(cfg.Provisioner, cfg.Logger).RegisterRoutes(r)
		})

		// Authenticated and scoped to the caller's organization
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireOrganization(cfg.Users, cfg.Logger))
			r.Use(rateLimiters[middleware.LimiterAPI])
			r.Use(middleware.NoStore)
			servers.NewHandler(cfg.Registry, cfg.Logger).RegisterRoutes(r)
			installs.NewHandler(cfg.Registry, cfg.Issuer, cfg.Logger).RegisterRoutes(r)
			apikeys.NewHandler(cfg.APIKeys, cfg.Logger).RegisterRoutes(r)
		})

		// Installed agents, authenticated by organization API key
		r.Group(func(r chi.Router) {
			r.Use(rateLimiters[middleware.LimiterAgent])
			r.Use(middleware.APIKeyAuth(cfg.APIKeys, cfg.Logger))
			agentapi.NewHandler(cfg.Registry, cfg.Logger).RegisterRoutes(r)
		})
	})

	return r
}

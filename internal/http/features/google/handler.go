// Package google serves the Google sign-in flow.
package google

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/auth"
	"github.com/tendant/agent-enroll/pkg/domain"
)

const (
	stateCookie    = "oauth_state"
	nonceCookie    = "oauth_nonce"
	redirectCookie = "oauth_redirect"
	clientCookie   = "oauth_client"

	stateTTL = 10 * time.Minute
)

// Authenticator runs the Google authorization code flow.
type Authenticator interface {
	GenerateAuthURL(state, nonce string) string
	Authenticate(ctx context.Context, code, expectedNonce string) (domain.ExternalIdentity, error)
}

// SignInService turns an external identity into a session.
type SignInService interface {
	SignIn(ctx context.Context, identity domain.ExternalIdentity, opts auth.IssueSessionOpts) (*domain.Session, *domain.TokenPair, error)
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

// Handler handles Google OAuth endpoints. State and nonce travel in
// short-lived cookies so any replica can complete the flow.
type Handler struct {
	google       Authenticator
	sessions     SignInService
	cookieConfig httputil.CookieConfig
	appBaseURL   string
	logger       *slog.Logger
}

// NewHandler creates a new Google handler.
func NewHandler(google Authenticator, sessions SignInService, cookieConfig httputil.CookieConfig, appBaseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		google:       google,
		sessions:     sessions,
		cookieConfig: cookieConfig,
		appBaseURL:   strings.TrimRight(appBaseURL, "/"),
		logger:       logger,
	}
}

// RegisterRoutes registers Google routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/auth/google", h.Start)
	r.Get("/auth/google/callback", h.Callback)
}

// CallbackResponse is returned to mobile clients.
type CallbackResponse struct {
	AccessToken      string  `json:"access_token"`
	RefreshToken     string  `json:"refresh_token"`
	TokenType        string  `json:"token_type"`
	ExpiresIn        int     `json:"expires_in"`
	OrganizationID   *string `json:"organization_id,omitempty"`
	OrganizationName string  `json:"organization_name,omitempty"`
}

// Start initiates the Google OAuth flow.
// GET /v1/auth/google?redirect_uri=/dashboard&client=mobile
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateToken(32)
	if err != nil {
		h.logger.Error("generate oauth state failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	nonce, err := auth.GenerateToken(32)
	if err != nil {
		h.logger.Error("generate oauth nonce failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	httputil.SetTransientCookie(w, stateCookie, state, stateTTL, h.cookieConfig)
	httputil.SetTransientCookie(w, nonceCookie, nonce, stateTTL, h.cookieConfig)
	if redirect := localPath(r.URL.Query().Get("redirect_uri")); redirect != "" {
		httputil.SetTransientCookie(w, redirectCookie, redirect, stateTTL, h.cookieConfig)
	}
	if r.URL.Query().Get("client") == "mobile" {
		httputil.SetTransientCookie(w, clientCookie, "mobile", stateTTL, h.cookieConfig)
	}

	http.Redirect(w, r, h.google.GenerateAuthURL(state, nonce), http.StatusFound)
}

// Callback handles the Google OAuth callback.
// GET /v1/auth/google/callback?code=...&state=...
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		httputil.Error(w, http.StatusBadRequest, errParam)
		return
	}

	expectedState, ok := httputil.CookieValue(r, stateCookie)
	if !ok || subtle.ConstantTimeCompare([]byte(expectedState), []byte(query.Get("state"))) != 1 {
		httputil.Error(w, http.StatusBadRequest, "invalid or expired state")
		return
	}
	nonce, _ := httputil.CookieValue(r, nonceCookie)
	redirect, _ := httputil.CookieValue(r, redirectCookie)
	client, _ := httputil.CookieValue(r, clientCookie)
	for _, name := range []string{stateCookie, nonceCookie, redirectCookie, clientCookie} {
		httputil.ClearCookie(w, name, h.cookieConfig)
	}

	code := query.Get("code")
	if code == "" {
		httputil.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	identity, err := h.google.Authenticate(r.Context(), code, nonce)
	if err != nil {
		h.logger.Warn("google authentication failed", "error", err)
		httputil.Error(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	session, tokens, err := h.sessions.SignIn(r.Context(), identity, auth.IssueSessionOpts{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Error("sign in failed", "provider", identity.Provider, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	h.logger.Info("user signed in",
		"user_id", session.UserID,
		"provider", identity.Provider,
		"has_organization", session.OrganizationID != nil,
	)

	if client == "mobile" {
		resp := CallbackResponse{
			AccessToken:      tokens.AccessToken,
			RefreshToken:     tokens.RefreshToken,
			TokenType:        tokens.TokenType,
			ExpiresIn:        tokens.ExpiresIn,
			OrganizationName: session.OrganizationName,
		}
		if session.OrganizationID != nil {
			id := session.OrganizationID.String()
			resp.OrganizationID = &id
		}
		httputil.JSON(w, http.StatusOK, resp)
		return
	}

	httputil.SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken,
		h.sessions.AccessTokenTTL(), h.sessions.RefreshTokenTTL(), h.cookieConfig)
	if redirect == "" {
		redirect = "/dashboard"
	}
	http.Redirect(w, r, h.appBaseURL+redirect, http.StatusFound)
}

// localPath accepts only same-site absolute paths as post-login targets.
func localPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`) {
		return ""
	}
	return p
}

package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/agent-enroll/pkg/auth"
	"github.com/tendant/agent-enroll/pkg/domain"
	"github.com/tendant/agent-enroll/pkg/repository/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubValidator struct {
	tokens map[string]*auth.AccessTokenClaims
}

func (v stubValidator) ValidateAccessToken(token string) (*auth.AccessTokenClaims, error) {
	claims, ok := v.tokens[token]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func claimsFor(userID uuid.UUID, orgID *uuid.UUID) *auth.AccessTokenClaims {
	c := &auth.AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		Email:            "ana@example.com",
		Name:             "Ana",
	}
	if orgID != nil {
		c.OrgID = orgID.String()
		c.OrgName = "Ana's Organization"
	}
	return c
}

// echoOrg reports the organization ID resolved into the context.
var echoOrg = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	orgID, ok := GetOrganizationID(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(orgID.String()))
})

func TestAuth(t *testing.T) {
	userID := uuid.New()
	validator := stubValidator{tokens: map[string]*auth.AccessTokenClaims{
		"good":        claimsFor(userID, nil),
		"bad-subject": {RegisteredClaims: jwt.RegisteredClaims{Subject: "nope"}},
	}}

	var seen *domain.Session
	handler := Auth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetUserID(r.Context())
		if !ok || id != userID {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		seen, _ = GetSession(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer good") }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: "good"}) }, http.StatusOK},
		{"unknown token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer other") }, http.StatusUnauthorized},
		{"bad subject", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad-subject") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, "ana@example.com", seen.Email)
	assert.Nil(t, seen.OrganizationID)
}

func TestRequireOrganization(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	logger := discardLogger()

	bound := &domain.User{ID: uuid.New(), Email: "bound@example.com"}
	unbound := &domain.User{ID: uuid.New(), Email: "unbound@example.com"}
	require.NoError(t, store.Users().Create(ctx, bound))
	require.NoError(t, store.Users().Create(ctx, unbound))
	org := &domain.Organization{ID: uuid.New(), Name: "Bound's Organization", Slug: "bound-1", OwnerUserID: bound.ID}
	require.NoError(t, store.Organizations().CreateForUser(ctx, org))

	claimOrg := uuid.New()
	validator := stubValidator{tokens: map[string]*auth.AccessTokenClaims{
		"claim":   claimsFor(uuid.New(), &claimOrg),
		"stale":   claimsFor(bound.ID, nil),
		"unbound": claimsFor(unbound.ID, nil),
		"ghost":   claimsFor(uuid.New(), nil),
	}}
	handler := Auth(validator)(RequireOrganization(store.Users(), logger)(echoOrg))

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/v1/servers", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("claim wins", func(t *testing.T) {
		w := call("claim")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, claimOrg.String(), w.Body.String())
	})

	t.Run("token issued before provisioning", func(t *testing.T) {
		w := call("stale")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, org.ID.String(), w.Body.String())
	})

	t.Run("not provisioned", func(t *testing.T) {
		w := call("unbound")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), CodeOrganizationNotProvisioned)
		assert.Contains(t, w.Body.String(), "please complete your setup")
	})

	t.Run("unknown user", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call("ghost").Code)
	})

	t.Run("without auth", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequireOrganization(store.Users(), logger)(echoOrg).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

type failingResolver struct{}

func (failingResolver) GetWithOrganization(context.Context, uuid.UUID) (*domain.User, *domain.Organization, error) {
	return nil, nil, errors.New("connection refused")
}

func TestRequireOrganization_StoreFailure(t *testing.T) {
	validator := stubValidator{tokens: map[string]*auth.AccessTokenClaims{"t": claimsFor(uuid.New(), nil)}}
	handler := Auth(validator)(RequireOrganization(failingResolver{}, discardLogger())(echoOrg))

	req := httptest.NewRequest("GET", "/v1/servers", nil)
	req.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestAPIKeyAuth(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	orgID := uuid.New()

	active := &domain.APIKey{ID: uuid.New(), Key: "sm_active", Name: "Default API Key", OrganizationID: orgID, IsActive: true, CreatedAt: time.Now()}
	revoked := &domain.APIKey{ID: uuid.New(), Key: "sm_revoked", Name: "old", OrganizationID: orgID, IsActive: false, CreatedAt: time.Now()}
	require.NoError(t, store.APIKeys().Create(ctx, active))
	require.NoError(t, store.APIKeys().Create(ctx, revoked))

	handler := APIKeyAuth(store.APIKeys(), discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := GetAPIKey(r.Context())
		org, _ := GetOrganizationID(r.Context())
		if !ok || org != key.OrganizationID {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"bearer", "Authorization", "Bearer sm_active", http.StatusNoContent},
		{"x-api-key", "X-API-Key", "sm_active", http.StatusNoContent},
		{"missing", "", "", http.StatusUnauthorized},
		{"unknown", "X-API-Key", "sm_unknown", http.StatusUnauthorized},
		{"revoked", "Authorization", "Bearer sm_revoked", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/agents/register", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRecoverAndLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Recover(logger)(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/v1/servers", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, buf.String(), `"status":201`)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/servers", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest("GET", "/v1/servers", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, strings.Contains(w.Header().Get("Vary"), "evil"))
}

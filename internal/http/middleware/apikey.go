package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// APIKeyLookup finds an API key by its value.
type APIKeyLookup interface {
	GetByKey(ctx context.Context, value string) (*domain.APIKey, error)
}

// APIKeyAuth creates middleware that authenticates installed agents by the
// organization API key they were installed with. The key is read from
// "Authorization: Bearer" or "X-API-Key".
func APIKeyAuth(keys APIKeyLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := bearerToken(r)
			if value == "" {
				value = strings.TrimSpace(r.Header.Get("X-API-Key"))
			}
			if value == "" {
				httputil.Error(w, http.StatusUnauthorized, "missing api key")
				return
			}

			key, err := keys.GetByKey(r.Context(), value)
			if err != nil {
				if !errors.Is(err, domain.ErrAPIKeyNotFound) {
					logger.Error("api key lookup failed", "key", domain.TruncateKey(value), "error", err)
					httputil.Error(w, http.StatusInternalServerError, "internal server error")
					return
				}
				httputil.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			if !key.IsActive {
				logger.Warn("inactive api key used", "key", key.Truncated(), "organization_id", key.OrganizationID)
				httputil.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyKey, key)
			ctx = WithOrganizationID(ctx, key.OrganizationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKey extracts the authenticating API key from the request context.
func GetAPIKey(ctx context.Context) (*domain.APIKey, bool) {
	key, ok := ctx.Value(APIKeyKey).(*domain.APIKey)
	return key, ok
}

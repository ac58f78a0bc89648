package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// CodeOrganizationNotProvisioned tells clients to call the provisioning
// endpoint instead of signing in again.
const CodeOrganizationNotProvisioned = "organization_not_provisioned"

// OrganizationResolver reads the current organization binding of a user.
type OrganizationResolver interface {
	GetWithOrganization(ctx context.Context, userID uuid.UUID) (*domain.User, *domain.Organization, error)
}

// RequireOrganization creates middleware that resolves the caller's
// organization. A bound organization never changes, so an organization
// claim in the token is used as is; otherwise the user record is read again
// since provisioning may have happened after the token was issued.
// Must be used after Auth middleware.
func RequireOrganization(resolver OrganizationResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSession(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}

			orgID := session.OrganizationID
			if orgID == nil {
				_, org, err := resolver.GetWithOrganization(r.Context(), session.UserID)
				switch {
				case errors.Is(err, domain.ErrUserNotFound):
					httputil.Error(w, http.StatusUnauthorized, "authentication required")
					return
				case err != nil:
					logger.Error("resolve organization failed", "user_id", session.UserID, "error", err)
					httputil.Error(w, http.StatusInternalServerError, "internal server error")
					return
				case org != nil:
					orgID = &org.ID
				}
			}

			if orgID == nil {
				httputil.ErrorWithCode(w, http.StatusForbidden, CodeOrganizationNotProvisioned,
					domain.ErrOrganizationNotProvisioned.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOrganizationID(r.Context(), *orgID)))
		})
	}
}

// WithOrganizationID returns a context scoped to orgID.
func WithOrganizationID(ctx context.Context, orgID uuid.UUID) context.Context {
	return context.WithValue(ctx, OrganizationIDKey, orgID)
}

// GetOrganizationID extracts the resolved organization ID from the request
// context.
func GetOrganizationID(ctx context.Context) (uuid.UUID, bool) {
	orgID, ok := ctx.Value(OrganizationIDKey).(uuid.UUID)
	return orgID, ok
}

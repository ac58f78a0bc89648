// Package organization serves the explicit provisioning trigger.
package organization

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/internal/http/features/common"
	"github.com/tendant/agent-enroll/internal/http/middleware"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// Ensurer provisions the organization of a user.
type Ensurer interface {
	EnsureOrganization(ctx context.Context, userID uuid.UUID, nameHint string) (*domain.Organization, error)
}

// Handler handles organization setup.
type Handler struct {
	provisioner Ensurer
	logger      *slog.Logger
}

// NewHandler creates a new organization handler.
func NewHandler(provisioner Ensurer, logger *slog.Logger) *Handler {
	return &Handler{provisioner: provisioner, logger: logger}
}

// RegisterRoutes registers organization routes. Callers apply Auth only;
// this is the remedy for callers without an organization.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/setup-organization", h.Setup)
}

// SetupResponse carries the caller's organization.
type SetupResponse struct {
	Organization *domain.Organization `json:"organization"`
}

// Setup returns the caller's organization, creating it when absent.
// POST /v1/setup-organization
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSession(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	org, err := h.provisioner.EnsureOrganization(r.Context(), session.UserID, session.Name)
	if err != nil {
		common.WriteError(w, h.logger, "setup organization", err)
		return
	}

	httputil.JSON(w, http.StatusOK, SetupResponse{Organization: org})
}

// Package me serves the caller's profile.
package me

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

// UserReader reads a user and its organization.
type UserReader interface {
	GetWithOrganization(ctx context.Context, userID uuid.UUID) (*domain.User, *domain.Organization, error)
}

// Handler handles user profile endpoints.
type Handler struct {
	logger *slog.Logger
	users  UserReader
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, users UserReader) *Handler {
	return &Handler{logger: logger, users: users}
}

// RegisterRoutes registers profile routes. Callers apply Auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.GetMe)
}

// UserResponse represents the user profile response.
type UserResponse struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	OrganizationID   *string `json:"organizationId,omitempty"`
	OrganizationName *string `json:"organizationName,omitempty"`
}

// GetMe returns the current user's profile with the organization read
// from the store, so it reflects provisioning done after sign-in.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, org, err := h.users.GetWithOrganization(r.Context(), userID)
	if err != nil {
		common.WriteError(w, h.logger, "get profile", err)
		return
	}

	session := domain.NewSession(user, org)
	resp := UserResponse{
		ID:    session.UserID.String(),
		Name:  session.Name,
		Email: session.Email,
	}
	if session.OrganizationID != nil {
		id := session.OrganizationID.String()
		resp.OrganizationID = &id
		resp.OrganizationName = &session.OrganizationName
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Package apikeys serves API key listing and revocation.
package apikeys

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/internal/http/features/common"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// Store lists and revokes organization API keys.
type Store interface {
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, orgID, id uuid.UUID) error
}

// Handler handles API key endpoints.
type Handler struct {
	keys   Store
	logger *slog.Logger
}

// NewHandler creates a new API keys handler.
func NewHandler(keys Store, logger *slog.Logger) *Handler {
	return &Handler{keys: keys, logger: logger}
}

// RegisterRoutes registers API key routes. Callers apply Auth and
// RequireOrganization.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api-keys", h.List)
	r.Post("/api-keys/{id}/revoke", h.Revoke)
}

// KeyResponse describes a key without exposing its value.
type KeyResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	TruncatedKey    string     `json:"truncatedKey"`
	IsActive        bool       `json:"isActive"`
	AutoProvisioned bool       `json:"autoProvisioned"`
	CreatedAt       time.Time  `json:"createdAt"`
	RevokedAt       *time.Time `json:"revokedAt,omitempty"`
}

func newKeyResponse(k *domain.APIKey) KeyResponse {
	return KeyResponse{
		ID:              k.ID.String(),
		Name:            k.Name,
		TruncatedKey:    k.Truncated(),
		IsActive:        k.IsActive,
		AutoProvisioned: k.AutoProvisioned,
		CreatedAt:       k.CreatedAt,
		RevokedAt:       k.RevokedAt,
	}
}

// List returns the organization's keys, newest first.
// GET /v1/api-keys
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}

	keys, err := h.keys.ListByOrganization(r.Context(), orgID)
	if err != nil {
		common.WriteError(w, h.logger, "list api keys", err)
		return
	}

	resp := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		resp = append(resp, newKeyResponse(k))
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Revoke deactivates a key. The next install command request issues a
// fresh one.
// POST /v1/api-keys/{id}/revoke
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "id", domain.ErrAPIKeyNotFound)
	if !ok {
		return
	}

	if err := h.keys.Revoke(r.Context(), orgID, id); err != nil {
		common.WriteError(w, h.logger, "revoke api key", err)
		return
	}

	h.logger.Info("api key revoked", "organization_id", orgID, "api_key_id", id)
	w.WriteHeader(http.StatusNoContent)
}

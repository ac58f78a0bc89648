// Package servers serves the organization-scoped agent CRUD endpoints.
package servers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/agent-enroll/internal/http/features/common"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/domain"
	"github.com/tendant/agent-enroll/pkg/registry"
)

// Handler handles server endpoints.
type Handler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewHandler creates a new servers handler.
func NewHandler(reg *registry.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: reg, logger: logger}
}

// RegisterRoutes registers server routes. Callers apply Auth and
// RequireOrganization.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/servers", h.List)
	r.Post("/servers", h.Create)
	r.Put("/servers/{id}", h.Update)
	r.Delete("/servers/{id}", h.Delete)
}

// ServerRequest is the body of create and update.
type ServerRequest struct {
	Name      string `json:"name"`
	IPAddress string `json:"ipAddress"`
	OSType    string `json:"osType"`
}

func (req ServerRequest) input() registry.AgentInput {
	return registry.AgentInput{Name: req.Name, IPAddress: req.IPAddress, OSType: req.OSType}
}

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	Message string `json:"message"`
}

// List returns the organization's servers, newest first.
// GET /v1/servers
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}

	agents, err := h.registry.List(r.Context(), orgID)
	if err != nil {
		common.WriteError(w, h.logger, "list servers", err)
		return
	}

	httputil.JSON(w, http.StatusOK, registry.NewAgentViews(agents))
}

// Create registers a server.
// POST /v1/servers
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}

	var req ServerRequest
	if !common.DecodeBody(w, r, &req, false) {
		return
	}

	agent, err := h.registry.Create(r.Context(), orgID, req.input())
	if err != nil {
		common.WriteError(w, h.logger, "create server", err)
		return
	}

	httputil.JSON(w, http.StatusCreated, registry.NewAgentView(agent))
}

// Update changes a server's name, address and operating system.
// PUT /v1/servers/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "id", domain.ErrAgentNotFound)
	if !ok {
		return
	}

	var req ServerRequest
	if !common.DecodeBody(w, r, &req, false) {
		return
	}

	agent, err := h.registry.Update(r.Context(), orgID, id, req.input())
	if err != nil {
		common.WriteError(w, h.logger, "update server", err)
		return
	}

	httputil.JSON(w, http.StatusOK, registry.NewAgentView(agent))
}

// Delete removes a server.
// DELETE /v1/servers/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "id", domain.ErrAgentNotFound)
	if !ok {
		return
	}

	if err := h.registry.Delete(r.Context(), orgID, id); err != nil {
		common.WriteError(w, h.logger, "delete server", err)
		return
	}

	httputil.JSON(w, http.StatusOK, DeleteResponse{Message: "Server deleted successfully"})
}

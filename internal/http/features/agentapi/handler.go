// Package agentapi serves the endpoints installed agents call with their
// organization API key.
package agentapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/agent-enroll/internal/http/features/common"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/registry"
)

// Handler handles agent self-service endpoints.
type Handler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewHandler creates a new agent API handler.
func NewHandler(reg *registry.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: reg, logger: logger}
}

// RegisterRoutes registers agent routes. Callers apply APIKeyAuth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/agents/register", h.Register)
	r.Post("/agents/{hostId}/status", h.Status)
}

// RegisterRequest is sent by an agent on startup.
type RegisterRequest struct {
	HostID       string   `json:"hostId"`
	Hostname     string   `json:"hostname"`
	IPAddress    string   `json:"ipAddress"`
	OSType       string   `json:"osType"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// RegisterResponse identifies the agent record.
type RegisterResponse struct {
	AgentID        string    `json:"agentId"`
	HostID         string    `json:"hostId"`
	OrganizationID string    `json:"organizationId"`
	Status         string    `json:"status"`
	LastSeen       time.Time `json:"lastSeen"`
}

// StatusRequest reports an agent status.
type StatusRequest struct {
	Status string `json:"status"`
}

// Register creates or refreshes the calling agent's record.
// POST /v1/agents/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}

	var req RegisterRequest
	if !common.DecodeBody(w, r, &req, false) {
		return
	}

	agent, err := h.registry.Register(r.Context(), orgID, registry.Registration{
		HostID:       req.HostID,
		Hostname:     req.Hostname,
		IPAddress:    req.IPAddress,
		OSType:       req.OSType,
		Version:      req.Version,
		Capabilities: req.Capabilities,
	})
	if err != nil {
		common.WriteError(w, h.logger, "register agent", err)
		return
	}

	resp := RegisterResponse{
		AgentID:        agent.ID.String(),
		HostID:         agent.HostID,
		OrganizationID: agent.OrganizationID.String(),
		Status:         agent.Status.View(),
	}
	if agent.LastSeen != nil {
		resp.LastSeen = *agent.LastSeen
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Status records a status report.
// POST /v1/agents/{hostId}/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if !common.DecodeBody(w, r, &req, false) {
		return
	}

	if err := h.registry.SetStatus(r.Context(), orgID, chi.URLParam(r, "hostId"), req.Status); err != nil {
		common.WriteError(w, h.logger, "update agent status", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

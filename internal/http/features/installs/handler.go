// Package installs serves install commands for targeted and headless
// agent installation.
package installs

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/agent-enroll/internal/http/features/common"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/domain"
	"github.com/tendant/agent-enroll/pkg/provision"
	"github.com/tendant/agent-enroll/pkg/registry"
)

// Handler handles install command endpoints.
type Handler struct {
	registry *registry.Registry
	issuer   *provision.Issuer
	logger   *slog.Logger
}

// NewHandler creates a new installs handler.
func NewHandler(reg *registry.Registry, issuer *provision.Issuer, logger *slog.Logger) *Handler {
	return &Handler{registry: reg, issuer: issuer, logger: logger}
}

// RegisterRoutes registers install routes. Callers apply Auth and
// RequireOrganization.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/servers/{id}/install-script", h.InstallScript)
	r.Post("/servers/generate-install-command", h.GenerateInstallCommand)
}

// InstallScriptResponse is the targeted install command of one server.
type InstallScriptResponse struct {
	Command    string `json:"command"`
	ServerName string `json:"serverName"`
	OSType     string `json:"osType"`
	IPAddress  string `json:"ipAddress"`
}

// GenerateRequest optionally names the target operating system.
type GenerateRequest struct {
	OSType string `json:"osType"`
}

// GenerateResponse is a headless install command.
type GenerateResponse struct {
	Command        string `json:"command"`
	TruncatedToken string `json:"truncatedToken"`
	IngestAddress  string `json:"ingestAddress"`
}

// InstallScript returns the install command for an existing server.
// GET /v1/servers/{id}/install-script
func (h *Handler) InstallScript(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}
	id, ok := common.PathID(w, r, "id", domain.ErrAgentNotFound)
	if !ok {
		return
	}

	agent, err := h.registry.Get(r.Context(), orgID, id)
	if err != nil {
		common.WriteError(w, h.logger, "get server", err)
		return
	}

	cmd, err := h.issuer.TargetedCommand(r.Context(), agent)
	if err != nil {
		common.WriteError(w, h.logger, "issue install command", err)
		return
	}

	ip := "localhost"
	if agent.IPAddress != nil && *agent.IPAddress != "" {
		ip = *agent.IPAddress
	}

	h.logger.Info("install command issued",
		"organization_id", orgID,
		"agent_id", agent.ID,
		"key", cmd.APIKey.Truncated(),
	)
	httputil.JSON(w, http.StatusOK, InstallScriptResponse{
		Command:    cmd.Command,
		ServerName: agent.DisplayName(),
		OSType:     agent.OSType(),
		IPAddress:  ip,
	})
}

// GenerateInstallCommand returns an install command for a host that
// registers itself on first contact.
// POST /v1/servers/generate-install-command
func (h *Handler) GenerateInstallCommand(w http.ResponseWriter, r *http.Request) {
	orgID, ok := common.OrganizationID(w, r)
	if !ok {
		return
	}

	var req GenerateRequest
	if !common.DecodeBody(w, r, &req, true) {
		return
	}

	cmd, err := h.issuer.HeadlessCommand(r.Context(), orgID, strings.TrimSpace(req.OSType))
	if err != nil {
		common.WriteError(w, h.logger, "issue install command", err)
		return
	}

	h.logger.Info("headless install command issued", "organization_id", orgID, "key", cmd.APIKey.Truncated())
	httputil.JSON(w, http.StatusOK, GenerateResponse{
		Command:        cmd.Command,
		TruncatedToken: cmd.APIKey.Truncated(),
		IngestAddress:  cmd.IngestAddress,
	})
}

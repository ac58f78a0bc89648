// Package registry manages the monitored servers of an organization. Every
// operation is scoped to the caller's organization.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
	"github.com/tendant/agent-enroll/pkg/provision"
)

// AgentStore persists agents. Lookups and mutations by id are filtered by
// organization; a record of another organization is reported as
// domain.ErrAgentNotFound.
type AgentStore interface {
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*domain.Agent, error)
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Agent, error)
	Create(ctx context.Context, agent *domain.Agent) error
	Update(ctx context.Context, agent *domain.Agent) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
	UpsertByHostID(ctx context.Context, agent *domain.Agent) (*domain.Agent, error)
	UpdateStatus(ctx context.Context, orgID uuid.UUID, hostID string, status domain.AgentStatus) error
}

// Registry is the organization-scoped agent CRUD surface.
type Registry struct {
	agents AgentStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates an agent registry.
func New(agents AgentStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{agents: agents, logger: logger, now: time.Now}
}

// AgentInput carries the operator-editable agent fields.
type AgentInput struct {
	Name      string
	IPAddress string
	OSType    string
}

// canonicalIP returns the single spelling stored for an address, so that
// uniqueness per organization holds across notations. IPv4-mapped IPv6
// addresses collapse to IPv4 and IPv6 is lower-cased and compressed.
func canonicalIP(s string) (string, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || addr.Zone() != "" {
		return "", fmt.Errorf("%w: invalid ipAddress %q", domain.ErrValidation, s)
	}
	return addr.Unmap().String(), nil
}

func (in AgentInput) normalize() (AgentInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.IPAddress = strings.TrimSpace(in.IPAddress)
	in.OSType = strings.ToLower(strings.TrimSpace(in.OSType))

	var missing []string
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if in.IPAddress == "" {
		missing = append(missing, "ipAddress")
	}
	if in.OSType == "" {
		missing = append(missing, "osType")
	}
	if len(missing) > 0 {
		return in, fmt.Errorf("%w: missing required fields: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	ip, err := canonicalIP(in.IPAddress)
	if err != nil {
		return in, err
	}
	in.IPAddress = ip
	if provision.Slugify(in.Name) == "" {
		return in, fmt.Errorf("%w: name must contain letters or digits", domain.ErrValidation)
	}
	return in, nil
}

// List returns the organization's agents, most recent first.
func (r *Registry) List(ctx context.Context, orgID uuid.UUID) ([]*domain.Agent, error) {
	return r.agents.ListByOrganization(ctx, orgID)
}

// Get returns one agent of the organization.
func (r *Registry) Get(ctx context.Context, orgID, id uuid.UUID) (*domain.Agent, error) {
	return r.agents.GetByID(ctx, orgID, id)
}

// Create registers an agent on behalf of an operator. The host id is
// derived from the name and the agent starts OFFLINE until it reports in.
func (r *Registry) Create(ctx context.Context, orgID uuid.UUID, in AgentInput) (*domain.Agent, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	now := r.now()
	ip := in.IPAddress
	agent := &domain.Agent{
		ID:             uuid.New(),
		HostID:         provision.Slugify(in.Name),
		Name:           in.Name,
		IPAddress:      &ip,
		OSInfo:         in.OSType,
		OrganizationID: orgID,
		Status:         domain.AgentStatusOffline,
		Capabilities:   []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.agents.Create(ctx, agent); err != nil {
		return nil, err
	}

	r.logger.Info("server created",
		"organization_id", orgID,
		"agent_id", agent.ID,
		"host_id", agent.HostID,
	)
	return agent, nil
}

// Update replaces the operator-editable fields of an agent. The host id is
// left untouched since installed agents already report with it.
func (r *Registry) Update(ctx context.Context, orgID, id uuid.UUID, in AgentInput) (*domain.Agent, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	agent, err := r.agents.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	ip := in.IPAddress
	agent.Name = in.Name
	agent.IPAddress = &ip
	agent.OSInfo = in.OSType
	agent.UpdatedAt = r.now()

	if err := r.agents.Update(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// Delete removes an agent immediately.
func (r *Registry) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	if err := r.agents.Delete(ctx, orgID, id); err != nil {
		return err
	}
	r.logger.Info("server deleted", "organization_id", orgID, "agent_id", id)
	return nil
}

// Registration is what an installed agent reports about itself.
type Registration struct {
	HostID       string
	Hostname     string
	IPAddress    string
	OSType       string
	Version      string
	Capabilities []string
}

// Register records a self-registering agent. A host id is derived from the
// hostname when the agent did not bring one. Registering again with the same
// host id refreshes the existing record.
func (r *Registry) Register(ctx context.Context, orgID uuid.UUID, reg Registration) (*domain.Agent, error) {
	hostID := provision.Slugify(reg.HostID)
	if hostID == "" {
		hostID = provision.Slugify(reg.Hostname)
	}
	if hostID == "" {
		return nil, fmt.Errorf("%w: hostId or hostname is required", domain.ErrValidation)
	}

	var ip *string
	if addr := strings.TrimSpace(reg.IPAddress); addr != "" {
		canonical, err := canonicalIP(addr)
		if err != nil {
			return nil, err
		}
		ip = &canonical
	}

	capabilities := reg.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}

	now := r.now()
	agent, err := r.agents.UpsertByHostID(ctx, &domain.Agent{
		ID:             uuid.New(),
		HostID:         hostID,
		Name:           strings.TrimSpace(reg.Hostname),
		IPAddress:      ip,
		OSInfo:         strings.ToLower(strings.TrimSpace(reg.OSType)),
		OrganizationID: orgID,
		Status:         domain.AgentStatusOnline,
		Version:        strings.TrimSpace(reg.Version),
		LastSeen:       &now,
		Capabilities:   capabilities,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("agent registered",
		"organization_id", orgID,
		"agent_id", agent.ID,
		"host_id", agent.HostID,
	)
	return agent, nil
}

// SetStatus records a status report from an installed agent.
func (r *Registry) SetStatus(ctx context.Context, orgID uuid.UUID, hostID, status string) error {
	parsed, err := domain.ParseAgentStatus(status)
	if err != nil {
		return err
	}
	if err := r.agents.UpdateStatus(ctx, orgID, hostID, parsed); err != nil {
		if !errors.Is(err, domain.ErrAgentNotFound) {
			r.logger.Error("update agent status failed", "organization_id", orgID, "host_id", hostID, "error", err)
		}
		return err
	}
	return nil
}

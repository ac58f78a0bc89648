package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// Agents mirrors repository.AgentsRepository.
type Agents struct{ s *Store }

// conflict checks the (organization, ip) and (organization, host id) unique
// constraints against every agent except self. Must be called with mu held.
func (a *Agents) conflict(agent *domain.Agent, self uuid.UUID) error {
	for id, existing := range a.s.agents {
		if id == self || existing.OrganizationID != agent.OrganizationID {
			continue
		}
		if agent.IPAddress != nil && existing.IPAddress != nil && *agent.IPAddress == *existing.IPAddress {
			return domain.ErrAgentIPConflict
		}
		if existing.HostID == agent.HostID {
			return domain.ErrAgentHostConflict
		}
	}
	return nil
}

// Create inserts an agent.
func (a *Agents) Create(_ context.Context, agent *domain.Agent) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := a.conflict(agent, uuid.Nil); err != nil {
		return err
	}
	s.agents[agent.ID] = cloneAgent(agent)
	s.track(agent.ID)
	return nil
}

// GetByID retrieves an agent owned by orgID.
func (a *Agents) GetByID(_ context.Context, orgID, id uuid.UUID) (*domain.Agent, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok || agent.OrganizationID != orgID {
		return nil, domain.ErrAgentNotFound
	}
	return cloneAgent(agent), nil
}

// ListByOrganization returns an organization's agents, most recent first.
func (a *Agents) ListByOrganization(_ context.Context, orgID uuid.UUID) ([]*domain.Agent, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := []*domain.Agent{}
	for _, agent := range s.agents {
		if agent.OrganizationID == orgID {
			agents = append(agents, cloneAgent(agent))
		}
	}
	sort.Slice(agents, func(i, j int) bool {
		return s.newerFirst(agents[i].ID, agents[j].ID, agents[i].CreatedAt, agents[j].CreatedAt)
	})
	return agents, nil
}

// Update writes the operator-editable fields of an agent.
func (a *Agents) Update(_ context.Context, agent *domain.Agent) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.agents[agent.ID]
	if !ok || existing.OrganizationID != agent.OrganizationID {
		return domain.ErrAgentNotFound
	}
	candidate := cloneAgent(existing)
	candidate.Name = agent.Name
	candidate.IPAddress = cloneString(agent.IPAddress)
	candidate.OSInfo = agent.OSInfo
	candidate.UpdatedAt = agent.UpdatedAt
	if err := a.conflict(candidate, agent.ID); err != nil {
		return err
	}
	s.agents[agent.ID] = candidate
	return nil
}

// Delete removes an agent owned by orgID.
func (a *Agents) Delete(_ context.Context, orgID, id uuid.UUID) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[id]
	if !ok || agent.OrganizationID != orgID {
		return domain.ErrAgentNotFound
	}
	delete(s.agents, id)
	delete(s.order, id)
	return nil
}

// UpsertByHostID creates or refreshes the agent identified by
// (organization, host id).
func (a *Agents) UpsertByHostID(_ context.Context, agent *domain.Agent) (*domain.Agent, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *domain.Agent
	for _, candidate := range s.agents {
		if candidate.OrganizationID == agent.OrganizationID && candidate.HostID == agent.HostID {
			existing = candidate
			break
		}
	}

	if existing == nil {
		if err := a.conflict(agent, uuid.Nil); err != nil {
			return nil, err
		}
		stored := cloneAgent(agent)
		s.agents[agent.ID] = stored
		s.track(agent.ID)
		return cloneAgent(stored), nil
	}

	updated := cloneAgent(existing)
	if updated.Name == "" {
		updated.Name = agent.Name
	}
	if agent.IPAddress != nil {
		updated.IPAddress = cloneString(agent.IPAddress)
	}
	if agent.OSInfo != "" {
		updated.OSInfo = agent.OSInfo
	}
	updated.Status = agent.Status
	updated.Version = agent.Version
	updated.LastSeen = cloneTime(agent.LastSeen)
	updated.Capabilities = append([]string(nil), agent.Capabilities...)
	updated.UpdatedAt = agent.UpdatedAt
	if err := a.conflict(updated, existing.ID); err != nil {
		return nil, err
	}
	s.agents[existing.ID] = updated
	return cloneAgent(updated), nil
}

// UpdateStatus records a status report for the agent with hostID.
func (a *Agents) UpdateStatus(_ context.Context, orgID uuid.UUID, hostID string, status domain.AgentStatus) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, agent := range s.agents {
		if agent.OrganizationID == orgID && agent.HostID == hostID {
			now := time.Now()
			agent.Status = status
			agent.LastSeen = &now
			agent.UpdatedAt = now
			return nil
		}
	}
	return domain.ErrAgentNotFound
}

// Count returns the number of stored agents across all organizations.
func (a *Agents) Count() int {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return len(a.s.agents)
}

func cloneAgent(a *domain.Agent) *domain.Agent {
	c := *a
	c.IPAddress = cloneString(a.IPAddress)
	c.LastSeen = cloneTime(a.LastSeen)
	c.Capabilities = append([]string{}, a.Capabilities...)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

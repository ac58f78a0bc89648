package registry

import (
	"time"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// AgentView is the client projection of an agent.
type AgentView struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	IPAddress      *string    `json:"ipAddress"`
	OSType         string     `json:"osType"`
	Status         string     `json:"status"`
	LastSeen       *time.Time `json:"lastSeen"`
	AgentVersion   string     `json:"agentVersion"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// NewAgentView maps an agent to its client projection. Status is reported in
// lower case.
func NewAgentView(a *domain.Agent) AgentView {
	return AgentView{
		ID:             a.ID,
		Name:           a.DisplayName(),
		IPAddress:      a.IPAddress,
		OSType:         a.OSType(),
		Status:         a.Status.View(),
		LastSeen:       a.LastSeen,
		AgentVersion:   a.Version,
		OrganizationID: a.OrganizationID,
		CreatedAt:      a.CreatedAt,
	}
}

// NewAgentViews maps a list of agents, never returning nil.
func NewAgentViews(agents []*domain.Agent) []AgentView {
	views := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, NewAgentView(a))
	}
	return views
}

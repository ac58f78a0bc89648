package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AgentStatus is the canonical stored status of an agent.
type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "ONLINE"
	AgentStatusOffline AgentStatus = "OFFLINE"
	AgentStatusPending AgentStatus = "PENDING"
)

// ParseAgentStatus accepts any letter case.
func ParseAgentStatus(s string) (AgentStatus, error) {
	switch st := AgentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case AgentStatusOnline, AgentStatusOffline, AgentStatusPending:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
}

// View is the lower-case form returned to clients.
func (s AgentStatus) View() string {
	return strings.ToLower(string(s))
}

// Agent is a monitored server record.
type Agent struct {
	ID             uuid.UUID
	HostID         string
	Name           string
	IPAddress      *string
	OSInfo         string
	OrganizationID uuid.UUID
	Status         AgentStatus
	Version        string
	LastSeen       *time.Time
	Capabilities   []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DisplayName falls back to the host id for self-registered agents.
func (a *Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.HostID
}

// OSType returns the OS family, defaulting to linux.
func (a *Agent) OSType() string {
	if a.OSInfo != "" {
		return a.OSInfo
	}
	return "linux"
}

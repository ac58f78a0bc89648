package domain

import (
	"time"

	"github.com/google/uuid"
)

// Plan is the billing tier of an organization.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

// DefaultMaxAgents is the agent quota of the free tier.
const DefaultMaxAgents = 5

// Organization is the tenant boundary owning agents and API keys.
type Organization struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Plan        Plan      `json:"plan"`
	MaxAgents   int       `json:"maxAgents"`
	OwnerUserID uuid.UUID `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

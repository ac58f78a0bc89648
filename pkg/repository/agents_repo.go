package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// AgentsRepository handles agent persistence. Every lookup and mutation by
// id is also filtered by organization.
type AgentsRepository struct {
	db *sql.DB
}

// NewAgentsRepository creates a new agents repository.
func NewAgentsRepository(db *sql.DB) *AgentsRepository {
	return &AgentsRepository{db: db}
}

const agentColumns = `id, host_id, name, ip_address, os_info, organization_id, status, version,
	last_seen, capabilities, created_at, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (*domain.Agent, error) {
	agent := &domain.Agent{}
	var capabilities pq.StringArray
	err := row.Scan(
		&agent.ID, &agent.HostID, &agent.Name, &agent.IPAddress, &agent.OSInfo,
		&agent.OrganizationID, &agent.Status, &agent.Version, &agent.LastSeen,
		&capabilities, &agent.CreatedAt, &agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	agent.Capabilities = []string(capabilities)
	return agent, nil
}

// mapAgentConflict turns unique violations on the agents table into
// registry errors.
func mapAgentConflict(err error) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case constraintAgentOrgIP:
		return domain.ErrAgentIPConflict
	case constraintAgentOrgHost:
		return domain.ErrAgentHostConflict
	}
	return fmt.Errorf("unique constraint violation: %s: %w", constraint, err)
}

// Create inserts an agent.
func (r *AgentsRepository) Create(ctx context.Context, agent *domain.Agent) error {
	query := `
		INSERT INTO agents (id, host_id, name, ip_address, os_info, organization_id, status, version,
			last_seen, capabilities, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		agent.ID, agent.HostID, agent.Name, agent.IPAddress, agent.OSInfo, agent.OrganizationID,
		agent.Status, agent.Version, agent.LastSeen, pq.Array(agent.Capabilities),
		agent.CreatedAt, agent.UpdatedAt,
	)
	return mapAgentConflict(err)
}

// GetByID retrieves an agent owned by orgID.
func (r *AgentsRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1 AND organization_id = $2`
	agent, err := scanAgent(r.db.QueryRowContext(ctx, query, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAgentNotFound
	}
	return agent, err
}

// ListByOrganization returns an organization's agents, most recent first.
func (r *AgentsRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*domain.Agent, error) {
	query := `
		SELECT ` + agentColumns + `
		FROM agents
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := []*domain.Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// Update writes the operator-editable fields of an agent owned by
// agent.OrganizationID.
func (r *AgentsRepository) Update(ctx context.Context, agent *domain.Agent) error {
	query := `
		UPDATE agents
		SET name = $3, ip_address = $4, os_info = $5, updated_at = $6
		WHERE id = $1 AND organization_id = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		agent.ID, agent.OrganizationID, agent.Name, agent.IPAddress, agent.OSInfo, agent.UpdatedAt,
	)
	if err != nil {
		return mapAgentConflict(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

// Delete removes an agent owned by orgID.
func (r *AgentsRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

// UpsertByHostID creates or refreshes the agent identified by
// (organization, host id), as reported by a self-registering installer.
func (r *AgentsRepository) UpsertByHostID(ctx context.Context, agent *domain.Agent) (*domain.Agent, error) {
	query := `
		INSERT INTO agents (id, host_id, name, ip_address, os_info, organization_id, status, version,
			last_seen, capabilities, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (organization_id, host_id)
		DO UPDATE SET
			name = CASE WHEN agents.name = '' THEN EXCLUDED.name ELSE agents.name END,
			ip_address = COALESCE(EXCLUDED.ip_address, agents.ip_address),
			os_info = CASE WHEN EXCLUDED.os_info = '' THEN agents.os_info ELSE EXCLUDED.os_info END,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			last_seen = EXCLUDED.last_seen,
			capabilities = EXCLUDED.capabilities,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + agentColumns
	stored, err := scanAgent(r.db.QueryRowContext(ctx, query,
		agent.ID, agent.HostID, agent.Name, agent.IPAddress, agent.OSInfo, agent.OrganizationID,
		agent.Status, agent.Version, agent.LastSeen, pq.Array(agent.Capabilities),
		agent.CreatedAt, agent.UpdatedAt,
	))
	if err != nil {
		return nil, mapAgentConflict(err)
	}
	return stored, nil
}

// UpdateStatus records a status report for the agent with hostID.
func (r *AgentsRepository) UpdateStatus(ctx context.Context, orgID uuid.UUID, hostID string, status domain.AgentStatus) error {
	query := `
		UPDATE agents
		SET status = $1, last_seen = NOW(), updated_at = NOW()
		WHERE organization_id = $2 AND host_id = $3
	`
	result, err := r.db.ExecContext(ctx, query, status, orgID, hostID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// OrganizationsRepository handles organization data persistence.
type OrganizationsRepository struct {
	db *sql.DB
}

// NewOrganizationsRepository creates a new organizations repository.
func NewOrganizationsRepository(db *sql.DB) *OrganizationsRepository {
	return &OrganizationsRepository{db: db}
}

// CreateTx creates a new organization within a transaction.
func (r *OrganizationsRepository) CreateTx(ctx context.Context, q Querier, org *domain.Organization) error {
	query := `
		INSERT INTO organizations (id, name, slug, plan, max_agents, owner_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.Slug,
		org.Plan,
		org.MaxAgents,
		org.OwnerUserID,
		org.CreatedAt,
		org.UpdatedAt,
	)
	return err
}

// CreateForUser inserts org and binds its owner to it in one transaction.
// The binding only applies while the user has no organization; when another
// writer got there first (owner marker, slug or set-once binding) the
// transaction is rolled back and domain.ErrConflict is returned.
func (r *OrganizationsRepository) CreateForUser(ctx context.Context, org *domain.Organization) error {
	err := Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.CreateTx(ctx, tx, org); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE users
			SET organization_id = $1, updated_at = NOW()
			WHERE id = $2 AND organization_id IS NULL
		`, org.ID, org.OwnerUserID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrConflict
		}
		return nil
	})
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case constraintOrganizationOwner, constraintOrganizationSlug:
			return domain.ErrConflict
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return err
}

// GetByID retrieves an organization by ID.
func (r *OrganizationsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	query := `
		SELECT id, name, slug, plan, max_agents, owner_user_id, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var org domain.Organization
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.Plan,
		&org.MaxAgents,
		&org.OwnerUserID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, err
	}

	return &org, nil
}

// GetBySlug retrieves an organization by slug.
func (r *OrganizationsRepository) GetBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	query := `
		SELECT id, name, slug, plan, max_agents, owner_user_id, created_at, updated_at
		FROM organizations
		WHERE slug = $1
	`

	var org domain.Organization
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.Plan,
		&org.MaxAgents,
		&org.OwnerUserID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, err
	}

	return &org, nil
}

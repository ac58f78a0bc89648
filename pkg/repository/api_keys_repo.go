package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// APIKeysRepository handles API key persistence.
type APIKeysRepository struct {
	db *sql.DB
}

// NewAPIKeysRepository creates a new API keys repository.
func NewAPIKeysRepository(db *sql.DB) *APIKeysRepository {
	return &APIKeysRepository{db: db}
}

const apiKeyColumns = `id, key, name, organization_id, is_active, auto_provisioned, created_at, revoked_at`

func scanAPIKey(row interface{ Scan(...any) error }) (*domain.APIKey, error) {
	key := &domain.APIKey{}
	err := row.Scan(
		&key.ID, &key.Key, &key.Name, &key.OrganizationID,
		&key.IsActive, &key.AutoProvisioned, &key.CreatedAt, &key.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Create stores a key. An auto-provisioned key collides with an existing
// active auto-provisioned key of the same organization, reported as
// domain.ErrConflict.
func (r *APIKeysRepository) Create(ctx context.Context, key *domain.APIKey) error {
	query := `
		INSERT INTO api_keys (id, key, name, organization_id, is_active, auto_provisioned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		key.ID, key.Key, key.Name, key.OrganizationID, key.IsActive, key.AutoProvisioned, key.CreatedAt,
	)
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case constraintAPIKeyProvisioned, constraintAPIKeyValue:
			return domain.ErrConflict
		}
	}
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// GetActiveByOrganization returns the oldest active key of an organization.
func (r *APIKeysRepository) GetActiveByOrganization(ctx context.Context, orgID uuid.UUID) (*domain.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE organization_id = $1 AND is_active
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`
	key, err := scanAPIKey(r.db.QueryRowContext(ctx, query, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAPIKeyNotFound
	}
	return key, err
}

// GetByKey retrieves a key by its secret value.
func (r *APIKeysRepository) GetByKey(ctx context.Context, value string) (*domain.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE key = $1
	`
	key, err := scanAPIKey(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAPIKeyNotFound
	}
	return key, err
}

// ListByOrganization returns every key of an organization, newest first.
func (r *APIKeysRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*domain.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*domain.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke deactivates a key owned by orgID. Revoking twice is not an error.
func (r *APIKeysRepository) Revoke(ctx context.Context, orgID, id uuid.UUID) error {
	query := `
		UPDATE api_keys
		SET is_active = FALSE, revoked_at = COALESCE(revoked_at, NOW())
		WHERE id = $1 AND organization_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, orgID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

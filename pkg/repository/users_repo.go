package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// UsersRepository handles user persistence.
type UsersRepository struct {
	db         *sql.DB
	identities *IdentitiesRepository
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db, identities: NewIdentitiesRepository(db)}
}

// Create creates a new user.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User) error {
	return r.CreateTx(ctx, r.db, user)
}

// CreateTx creates a new user within a transaction.
func (r *UsersRepository) CreateTx(ctx context.Context, q Querier, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// CreateWithIdentity creates a user and links its external identity in one
// transaction. Returns domain.ErrConflict if the identity was linked
// concurrently.
func (r *UsersRepository) CreateWithIdentity(ctx context.Context, user *domain.User, identity *domain.UserIdentity) error {
	err := Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.CreateTx(ctx, tx, user); err != nil {
			return err
		}
		return r.identities.CreateTx(ctx, tx, identity)
	})
	if constraint, ok := uniqueViolation(err); ok && constraint == constraintIdentitySubject {
		return domain.ErrConflict
	}
	return err
}

// GetByID retrieves a user by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, email, name, organization_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.OrganizationID,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetWithOrganization retrieves a user and, when bound, its organization.
func (r *UsersRepository) GetWithOrganization(ctx context.Context, id uuid.UUID) (*domain.User, *domain.Organization, error) {
	query := `
		SELECT u.id, u.email, u.name, u.organization_id, u.created_at, u.updated_at,
		       o.id, o.name, o.slug, o.plan, o.max_agents, o.owner_user_id, o.created_at, o.updated_at
		FROM users u
		LEFT JOIN organizations o ON o.id = u.organization_id
		WHERE u.id = $1
	`
	user := &domain.User{}
	var (
		orgID, ownerID       uuid.NullUUID
		name, slug, plan     sql.NullString
		maxAgents            sql.NullInt64
		createdAt, updatedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.OrganizationID, &user.CreatedAt, &user.UpdatedAt,
		&orgID, &name, &slug, &plan, &maxAgents, &ownerID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get user with organization: %w", err)
	}

	if !orgID.Valid {
		return user, nil, nil
	}
	return user, &domain.Organization{
		ID:          orgID.UUID,
		Name:        name.String,
		Slug:        slug.String,
		Plan:        domain.Plan(plan.String),
		MaxAgents:   int(maxAgents.Int64),
		OwnerUserID: ownerID.UUID,
		CreatedAt:   createdAt.Time,
		UpdatedAt:   updatedAt.Time,
	}, nil
}

// GetByIdentity retrieves the user linked to an external identity.
func (r *UsersRepository) GetByIdentity(ctx context.Context, provider, subject string) (*domain.User, error) {
	identity, err := r.identities.GetByProviderSubject(ctx, provider, subject)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return r.GetByID(ctx, identity.UserID)
}

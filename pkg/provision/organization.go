package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// UserReader loads a user together with its organization, if any.
type UserReader interface {
	GetWithOrganization(ctx context.Context, userID uuid.UUID) (*domain.User, *domain.Organization, error)
}

// OrganizationCreator persists an organization and binds its owner to it.
// It must return domain.ErrConflict when the owner is already bound or the
// slug is taken, leaving nothing behind.
type OrganizationCreator interface {
	CreateForUser(ctx context.Context, org *domain.Organization) error
}

// Provisioner ensures every user has exactly one organization.
type Provisioner struct {
	users    UserReader
	orgs     OrganizationCreator
	logger   *slog.Logger
	now      func() time.Time
	maxTries uint
}

// NewProvisioner creates an organization provisioner.
func NewProvisioner(users UserReader, orgs OrganizationCreator, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		users:    users,
		orgs:     orgs,
		logger:   logger,
		now:      time.Now,
		maxTries: DefaultMaxTries,
	}
}

// EnsureOrganization returns the organization bound to userID, creating and
// binding a FREE tier organization named after nameHint if there is none.
// Concurrent callers for the same user all receive the same organization.
func (p *Provisioner) EnsureOrganization(ctx context.Context, userID uuid.UUID, nameHint string) (*domain.Organization, error) {
	org, err := retryOnConflict(ctx, p.maxTries, func() (*domain.Organization, error) {
		_, existing, err := p.users.GetWithOrganization(ctx, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		org := p.newOrganization(userID, nameHint)
		if err := p.orgs.CreateForUser(ctx, org); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				p.logger.Debug("organization creation lost race, re-reading", "user_id", userID)
			}
			return nil, err
		}

		p.logger.Info("organization provisioned",
			"user_id", userID,
			"organization_id", org.ID,
			"slug", org.Slug,
		)
		return org, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ensure organization: %w", err)
	}
	return org, nil
}

func (p *Provisioner) newOrganization(userID uuid.UUID, nameHint string) *domain.Organization {
	now := p.now()
	name := OrganizationName(nameHint)
	return &domain.Organization{
		ID:          uuid.New(),
		Name:        name,
		Slug:        OrganizationSlug(name, now),
		Plan:        domain.PlanFree,
		MaxAgents:   domain.DefaultMaxAgents,
		OwnerUserID: userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

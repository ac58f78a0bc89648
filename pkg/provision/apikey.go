package provision

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// DefaultKeyName names auto-provisioned keys.
const DefaultKeyName = "Default API Key"

// keyRandomBytes is the entropy of the random key component.
const keyRandomBytes = 18

// APIKeyStore looks up and stores organization API keys. Create must return
// domain.ErrConflict for a second active auto-provisioned key.
type APIKeyStore interface {
	GetActiveByOrganization(ctx context.Context, orgID uuid.UUID) (*domain.APIKey, error)
	Create(ctx context.Context, key *domain.APIKey) error
}

// GenerateKeyValue builds a key of the form sm_<org>_<unix ms>_<random>,
// reading the random component from r.
func GenerateKeyValue(orgID uuid.UUID, now time.Time, r io.Reader) (string, error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%s_%s_%d_%s", domain.APIKeyPrefix, orgID, now.UnixMilli(), base58.Encode(buf)), nil
}

// EnsureAPIKey returns the active key of orgID, creating one if the
// organization has none. Concurrent callers all receive the same key.
func (i *Issuer) EnsureAPIKey(ctx context.Context, orgID uuid.UUID) (*domain.APIKey, error) {
	key, err := retryOnConflict(ctx, i.maxTries, func() (*domain.APIKey, error) {
		existing, err := i.keys.GetActiveByOrganization(ctx, orgID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrAPIKeyNotFound) {
			return nil, err
		}

		now := i.now()
		value, err := GenerateKeyValue(orgID, now, i.random)
		if err != nil {
			return nil, err
		}
		key := &domain.APIKey{
			ID:              uuid.New(),
			Key:             value,
			Name:            DefaultKeyName,
			OrganizationID:  orgID,
			IsActive:        true,
			AutoProvisioned: true,
			CreatedAt:       now,
		}
		if err := i.keys.Create(ctx, key); err != nil {
			return nil, err
		}

		i.logger.Info("api key issued",
			"organization_id", orgID,
			"key", key.Truncated(),
		)
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ensure api key: %w", err)
	}
	return key, nil
}

var defaultRandom io.Reader = rand.Reader

package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIKeyPrefix starts every issued key value.
const APIKeyPrefix = "sm"

// truncatedKeyLen is how much of a key may be shown or logged.
const truncatedKeyLen = 20

// APIKey is a bearer credential scoped to one organization.
type APIKey struct {
	ID              uuid.UUID
	Key             string
	Name            string
	OrganizationID  uuid.UUID
	IsActive        bool
	AutoProvisioned bool
	CreatedAt       time.Time
	RevokedAt       *time.Time
}

// Truncated returns the display form of the key value.
func (k *APIKey) Truncated() string {
	return TruncateKey(k.Key)
}

// TruncateKey keeps the first characters of a key for display and logs.
func TruncateKey(key string) string {
	if len(key) <= truncatedKeyLen {
		return key
	}
	return key[:truncatedKeyLen] + "..."
}

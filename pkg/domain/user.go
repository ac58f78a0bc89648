package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents the account.
type User struct {
	ID             uuid.UUID
	Email          string
	Name           *string
	OrganizationID *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DisplayName returns the user's name or an empty string.
func (u *User) DisplayName() string {
	if u.Name == nil {
		return ""
	}
	return *u.Name
}

// UserIdentity stores external identities (Google, etc.).
type UserIdentity struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Provider        string
	ProviderSubject string
	Email           *string
	CreatedAt       time.Time
}

// ExternalIdentity is a verified assertion from an identity provider.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// IdentityProvider constants
const (
	ProviderGoogle = "google"
)

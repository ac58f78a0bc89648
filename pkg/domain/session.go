package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session is the materialized sign-in of a user. The organization fields are
// empty until the user has been provisioned.
type Session struct {
	UserID           uuid.UUID
	Name             string
	Email            string
	OrganizationID   *uuid.UUID
	OrganizationName string
}

// HasOrganization reports whether an organization is bound to the session.
func (s *Session) HasOrganization() bool {
	return s.OrganizationID != nil
}

// NewSession maps a user and its optional organization to a session value.
func NewSession(user *User, org *Organization) *Session {
	s := &Session{
		UserID: user.ID,
		Name:   user.DisplayName(),
		Email:  user.Email,
	}
	if org != nil {
		id := org.ID
		s.OrganizationID = &id
		s.OrganizationName = org.Name
	}
	return s
}

// RefreshSession is a stored refresh-token session.
type RefreshSession struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastSeenAt *time.Time
	Metadata   json.RawMessage
}

// SessionMetadata holds optional session context.
type SessionMetadata struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// IsValid checks if the session is valid (not expired and not revoked).
func (s *RefreshSession) IsValid() bool {
	if s.RevokedAt != nil {
		return false
	}
	return time.Now().Before(s.ExpiresAt)
}

// TokenPair represents the access and refresh token pair.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

package domain

import "errors"

// Authentication errors
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionExpired        = errors.New("session expired")
	ErrSessionRevoked        = errors.New("session revoked")
	ErrInvalidToken          = errors.New("invalid token")
	ErrIdentityNotFound      = errors.New("identity not found")
	ErrIdentityAlreadyLinked = errors.New("identity already linked to another user")
)

// Tenancy errors
var (
	ErrOrganizationNotFound       = errors.New("organization not found")
	ErrOrganizationNotProvisioned = errors.New("no organization found, please complete your setup")
	ErrAPIKeyNotFound             = errors.New("api key not found")
	ErrAPIKeyInactive             = errors.New("api key is not active")
)

// Agent registry errors
var (
	ErrAgentNotFound     = errors.New("server not found")
	ErrAgentIPConflict   = errors.New("server with this IP address already exists")
	ErrAgentHostConflict = errors.New("server with this host id already exists")
)

// ErrConflict is returned by stores when a uniqueness constraint rejected a
// write. Callers that own an idempotent operation re-read and retry.
var ErrConflict = errors.New("conflicting write")

// ErrValidation marks a missing or malformed input field.
var ErrValidation = errors.New("validation failed")

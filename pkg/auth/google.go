package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/agent-enroll/pkg/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleIssuer    = "https://accounts.google.com"
	googleIssuerAlt = "accounts.google.com"
)

// GoogleConfig holds Google OAuth configuration.
type GoogleConfig struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	MobileClientIDs []string
}

// Enabled reports whether Google sign-in is configured.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// GoogleClaims represents the claims from a Google ID token.
type GoogleClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Nonce         string `json:"nonce"`
}

// Identity maps the claims to an external identity.
func (c *GoogleClaims) Identity() domain.ExternalIdentity {
	return domain.ExternalIdentity{
		Provider: domain.ProviderGoogle,
		Subject:  c.Subject,
		Email:    c.Email,
		Name:     c.Name,
	}
}

// GoogleService runs the Google OpenID Connect authorization code flow.
type GoogleService struct {
	config GoogleConfig
	oauth  *oauth2.Config
}

// NewGoogleService creates a new Google service.
func NewGoogleService(config GoogleConfig) *GoogleService {
	return &GoogleService{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}
}

// GenerateAuthURL generates the Google OAuth authorization URL.
func (s *GoogleService) GenerateAuthURL(state, nonce string) string {
	return s.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// ExchangeCode exchanges an authorization code and returns the raw ID token.
func (s *GoogleService) ExchangeCode(ctx context.Context, code string) (string, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", errors.New("token response has no id_token")
	}
	return idToken, nil
}

// ValidateIDToken checks issuer, audience, expiry and nonce of an ID token
// received directly from the token endpoint.
func (s *GoogleService) ValidateIDToken(idToken, expectedNonce string) (*GoogleClaims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(idToken, &GoogleClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse ID token: %w", err)
	}

	claims, ok := token.Claims.(*GoogleClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	if claims.Issuer != googleIssuer && claims.Issuer != googleIssuerAlt {
		return nil, fmt.Errorf("invalid issuer: %s", claims.Issuer)
	}

	if !s.validAudience(claims.Audience) {
		return nil, errors.New("invalid audience")
	}

	if claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now()) {
		return nil, errors.New("token expired")
	}

	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return nil, errors.New("nonce mismatch")
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}

// validAudience accepts the web client ID or any mobile client ID.
func (s *GoogleService) validAudience(audience jwt.ClaimStrings) bool {
	for _, aud := range audience {
		if aud == s.config.ClientID {
			return true
		}
		for _, mobileID := range s.config.MobileClientIDs {
			if mobileID != "" && aud == mobileID {
				return true
			}
		}
	}
	return false
}

// Authenticate exchanges the code and returns the verified identity.
func (s *GoogleService) Authenticate(ctx context.Context, code, expectedNonce string) (domain.ExternalIdentity, error) {
	idToken, err := s.ExchangeCode(ctx, code)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	claims, err := s.ValidateIDToken(idToken, expectedNonce)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	return claims.Identity(), nil
}

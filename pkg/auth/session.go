package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

const (
	// Token lengths
	refreshTokenLen = 32

	// Default token lifetimes
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// SessionConfig holds session configuration.
type SessionConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	JWTSecret       []byte
	Issuer          string
}

// UserStore finds and creates users from external identities.
type UserStore interface {
	GetByIdentity(ctx context.Context, provider, subject string) (*domain.User, error)
	CreateWithIdentity(ctx context.Context, user *domain.User, identity *domain.UserIdentity) error
	GetWithOrganization(ctx context.Context, id uuid.UUID) (*domain.User, *domain.Organization, error)
}

// SessionStore persists refresh sessions.
type SessionStore interface {
	Create(ctx context.Context, session *domain.RefreshSession) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshSession, error)
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
}

// OrganizationEnsurer provisions a user's organization on first sign-in.
type OrganizationEnsurer interface {
	EnsureOrganization(ctx context.Context, userID uuid.UUID, nameHint string) (*domain.Organization, error)
}

// SessionService maps external identities to local users and issues
// sessions for them.
type SessionService struct {
	config      SessionConfig
	sessions    SessionStore
	users       UserStore
	provisioner OrganizationEnsurer
	logger      *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(config SessionConfig, sessions SessionStore, users UserStore, provisioner OrganizationEnsurer, logger *slog.Logger) *SessionService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		config:      config,
		sessions:    sessions,
		users:       users,
		provisioner: provisioner,
		logger:      logger,
	}
}

// AccessTokenTTL returns the access token TTL.
func (s *SessionService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// RefreshTokenTTL returns the refresh token TTL.
func (s *SessionService) RefreshTokenTTL() time.Duration {
	return s.config.RefreshTokenTTL
}

// IssueSessionOpts holds options for session issuance.
type IssueSessionOpts struct {
	IP        string
	UserAgent string
}

// AccessTokenClaims represents the claims in an access token. The
// organization claims are absent until the user is provisioned.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	OrgID   string `json:"org_id,omitempty"`
	OrgName string `json:"org_name,omitempty"`
}

// Session converts the claims back into a session value.
func (c *AccessTokenClaims) Session() (*domain.Session, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	session := &domain.Session{
		UserID: userID,
		Name:   c.Name,
		Email:  c.Email,
	}
	if c.OrgID != "" {
		orgID, err := uuid.Parse(c.OrgID)
		if err != nil {
			return nil, domain.ErrInvalidToken
		}
		session.OrganizationID = &orgID
		session.OrganizationName = c.OrgName
	}
	return session, nil
}

// ResolveUser returns the user linked to identity, creating one on first
// sign-in.
func (s *SessionService) ResolveUser(ctx context.Context, identity domain.ExternalIdentity) (*domain.User, error) {
	if identity.Provider == "" || identity.Subject == "" {
		return nil, fmt.Errorf("%w: identity provider and subject are required", domain.ErrValidation)
	}

	user, err := s.users.GetByIdentity(ctx, identity.Provider, identity.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	now := time.Now()
	user = &domain.User{
		ID:        uuid.New(),
		Email:     identity.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if name := SanitizeName(identity.Name); name != "" {
		user.Name = &name
	}
	link := &domain.UserIdentity{
		ID:              uuid.New(),
		UserID:          user.ID,
		Provider:        identity.Provider,
		ProviderSubject: identity.Subject,
		CreatedAt:       now,
	}
	if identity.Email != "" {
		email := identity.Email
		link.Email = &email
	}

	err = s.users.CreateWithIdentity(ctx, user, link)
	if errors.Is(err, domain.ErrConflict) {
		// concurrent first sign-in linked the identity first
		return s.users.GetByIdentity(ctx, identity.Provider, identity.Subject)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "provider", identity.Provider)
	return user, nil
}

// Materialize builds the session of a user. The organization binding is
// re-read every time; an unbound user is provisioned on the spot. A
// provisioning failure is logged and the session is returned without
// organization.
func (s *SessionService) Materialize(ctx context.Context, userID uuid.UUID) (*domain.Session, error) {
	user, org, err := s.users.GetWithOrganization(ctx, userID)
	if err != nil {
		return nil, err
	}

	if org == nil && s.provisioner != nil {
		provisioned, err := s.provisioner.EnsureOrganization(ctx, user.ID, user.DisplayName())
		if err != nil {
			s.logger.Error("organization provisioning failed during sign-in",
				"user_id", user.ID,
				"error", err,
			)
		} else {
			org = provisioned
		}
	}

	return domain.NewSession(user, org), nil
}

// SignIn resolves identity to a user, materializes its session and issues
// tokens for it.
func (s *SessionService) SignIn(ctx context.Context, identity domain.ExternalIdentity, opts IssueSessionOpts) (*domain.Session, *domain.TokenPair, error) {
	user, err := s.ResolveUser(ctx, identity)
	if err != nil {
		return nil, nil, err
	}
	session, err := s.Materialize(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := s.IssueSession(ctx, session, opts)
	if err != nil {
		return nil, nil, err
	}
	return session, tokens, nil
}

// IssueSession stores a new refresh session and returns access/refresh
// tokens for it.
func (s *SessionService) IssueSession(ctx context.Context, session *domain.Session, opts IssueSessionOpts) (*domain.TokenPair, error) {
	now := time.Now()

	refreshToken, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return nil, err
	}

	stored := &domain.RefreshSession{
		ID:        uuid.New(),
		UserID:    session.UserID,
		TokenHash: HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
	}
	if opts.IP != "" || opts.UserAgent != "" {
		metadata, err := json.Marshal(domain.SessionMetadata{IP: opts.IP, UserAgent: opts.UserAgent})
		if err != nil {
			return nil, err
		}
		stored.Metadata = metadata
	}

	if err := s.sessions.Create(ctx, stored); err != nil {
		return nil, err
	}

	return s.tokenPair(session, stored.ID, refreshToken, now)
}

// RefreshSession issues a new access token for a refresh token. The
// session, and with it the organization binding, is materialized again.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	stored, err := s.sessions.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, err
	}

	if !stored.IsValid() {
		if stored.RevokedAt != nil {
			return nil, domain.ErrSessionRevoked
		}
		return nil, domain.ErrSessionExpired
	}

	_ = s.sessions.UpdateLastSeen(ctx, stored.ID)

	session, err := s.Materialize(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}

	return s.tokenPair(session, stored.ID, refreshToken, time.Now())
}

func (s *SessionService) tokenPair(session *domain.Session, sessionID uuid.UUID, refreshToken string, now time.Time) (*domain.TokenPair, error) {
	accessTokenExpiry := now.Add(s.config.AccessTokenTTL)
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessTokenExpiry),
			Issuer:    s.config.Issuer,
			ID:        sessionID.String(),
		},
		Email: session.Email,
		Name:  session.Name,
	}
	if session.HasOrganization() {
		claims.OrgID = session.OrganizationID.String()
		claims.OrgName = session.OrganizationName
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    accessTokenExpiry,
	}, nil
}

// RevokeSession revokes a session by refresh token.
func (s *SessionService) RevokeSession(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeByTokenHash(ctx, HashToken(refreshToken))
}

// RevokeAllSessions revokes all sessions for a user.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.RevokeAllByUserID(ctx, userID)
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *SessionService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	})
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}

package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// Sessions mirrors repository.SessionsRepository.
type Sessions struct{ s *Store }

// Create stores a refresh session.
func (r *Sessions) Create(_ context.Context, session *domain.RefreshSession) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.TokenHash]; ok {
		return domain.ErrConflict
	}
	c := *session
	s.sessions[session.TokenHash] = &c
	return nil
}

// GetByTokenHash retrieves a session by token hash.
func (r *Sessions) GetByTokenHash(_ context.Context, tokenHash string) (*domain.RefreshSession, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	c := *session
	return &c, nil
}

// RevokeByTokenHash revokes a session by token hash.
func (r *Sessions) RevokeByTokenHash(_ context.Context, tokenHash string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[tokenHash]; ok && session.RevokedAt == nil {
		now := time.Now()
		session.RevokedAt = &now
	}
	return nil
}

// RevokeAllByUserID revokes all sessions for a user.
func (r *Sessions) RevokeAllByUserID(_ context.Context, userID uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, session := range s.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			revokedAt := now
			session.RevokedAt = &revokedAt
		}
	}
	return nil
}

// UpdateLastSeen updates the last seen timestamp.
func (r *Sessions) UpdateLastSeen(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.ID == id && session.RevokedAt == nil {
			now := time.Now()
			session.LastSeenAt = &now
		}
	}
	return nil
}

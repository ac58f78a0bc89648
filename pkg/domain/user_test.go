package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUser_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		in   *string
		want string
	}{
		{
			name: "name is nil",
			in:   nil,
			want: "",
		},
		{
			name: "name is set",
			in:   stringPtr("Alice"),
			want: "Alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &User{ID: uuid.New(), Email: "test@example.com", Name: tt.in}
			if got := user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSession(t *testing.T) {
	user := &User{ID: uuid.New(), Email: "alice@example.com", Name: stringPtr("Alice")}

	t.Run("without organization", func(t *testing.T) {
		s := NewSession(user, nil)
		if s.HasOrganization() {
			t.Error("HasOrganization() = true, want false")
		}
		if s.OrganizationName != "" {
			t.Errorf("OrganizationName = %q, want empty", s.OrganizationName)
		}
		if s.UserID != user.ID || s.Name != "Alice" || s.Email != "alice@example.com" {
			t.Errorf("unexpected session %+v", s)
		}
	})

	t.Run("with organization", func(t *testing.T) {
		org := &Organization{ID: uuid.New(), Name: "Alice's Organization"}
		s := NewSession(user, org)
		if !s.HasOrganization() {
			t.Fatal("HasOrganization() = false, want true")
		}
		if *s.OrganizationID != org.ID {
			t.Errorf("OrganizationID = %v, want %v", *s.OrganizationID, org.ID)
		}
		if s.OrganizationName != org.Name {
			t.Errorf("OrganizationName = %q, want %q", s.OrganizationName, org.Name)
		}

		org.ID = uuid.New()
		if *s.OrganizationID == org.ID {
			t.Error("session aliases the organization id")
		}
	})
}

func TestRefreshSession_IsValid(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)

	tests := []struct {
		name    string
		session RefreshSession
		want    bool
	}{
		{
			name:    "active",
			session: RefreshSession{ExpiresAt: now.Add(time.Hour)},
			want:    true,
		},
		{
			name:    "expired",
			session: RefreshSession{ExpiresAt: past},
			want:    false,
		},
		{
			name:    "revoked",
			session: RefreshSession{ExpiresAt: now.Add(time.Hour), RevokedAt: &past},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func stringPtr(s string) *string {
	return &s
}

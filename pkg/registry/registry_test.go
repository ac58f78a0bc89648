package registry

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/agent-enroll/pkg/domain"
	"github.com/tendant/agent-enroll/pkg/repository/memory"
)

func newRegistry() (*Registry, *memory.Store) {
	store := memory.New()
	return New(store.Agents(), slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestCreate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	orgID := uuid.New()

	created, err := r.Create(ctx, orgID, AgentInput{Name: "web-1", IPAddress: "10.0.0.5", OSType: "linux"})
	require.NoError(t, err)
	assert.Equal(t, "web-1", created.HostID)
	assert.Equal(t, domain.AgentStatusOffline, created.Status)

	agents, err := r.List(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, agents, 1)

	view := NewAgentView(agents[0])
	assert.Equal(t, "offline", view.Status)
	assert.Equal(t, "linux", view.OSType)
	require.NotNil(t, view.IPAddress)
	assert.Equal(t, "10.0.0.5", *view.IPAddress)
	assert.Nil(t, view.LastSeen)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry()
	orgID := uuid.New()

	tests := []struct {
		name  string
		input AgentInput
	}{
		{"missing name", AgentInput{IPAddress: "10.0.0.5", OSType: "linux"}},
		{"missing ip", AgentInput{Name: "web-1", OSType: "linux"}},
		{"missing os", AgentInput{Name: "web-1", IPAddress: "10.0.0.5"}},
		{"blank fields", AgentInput{Name: "  ", IPAddress: " ", OSType: " "}},
		{"bad ip", AgentInput{Name: "web-1", IPAddress: "not-an-ip", OSType: "linux"}},
		{"name without slug", AgentInput{Name: "!!!", IPAddress: "10.0.0.5", OSType: "linux"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Create(ctx, orgID, tt.input)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Equal(t, 0, store.Agents().Count())
}

func TestCreate_DuplicateIPConflicts(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry()
	orgID := uuid.New()

	_, err := r.Create(ctx, orgID, AgentInput{Name: "web-1", IPAddress: "10.0.0.5", OSType: "linux"})
	require.NoError(t, err)

	_, err = r.Create(ctx, orgID, AgentInput{Name: "web-2", IPAddress: "10.0.0.5", OSType: "linux"})
	assert.ErrorIs(t, err, domain.ErrAgentIPConflict)
	assert.Equal(t, 1, store.Agents().Count())

	// same ip in another organization is fine
	_, err = r.Create(ctx, uuid.New(), AgentInput{Name: "web-2", IPAddress: "10.0.0.5", OSType: "linux"})
	assert.NoError(t, err)
}

func TestCreate_IPSpellingsConflict(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
		stored string
	}{
		{"ipv4 mapped in ipv6", "10.0.0.5", "::ffff:10.0.0.5", "10.0.0.5"},
		{"ipv6 case and expansion", "2001:db8::1", "2001:DB8:0:0:0:0:0:1", "2001:db8::1"},
		{"ipv6 upper case first", "FE80::A", "fe80:0::a", "fe80::a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r, store := newRegistry()
			orgID := uuid.New()

			first, err := r.Create(ctx, orgID, AgentInput{Name: "web-1", IPAddress: tt.first, OSType: "linux"})
			require.NoError(t, err)
			require.NotNil(t, first.IPAddress)
			assert.Equal(t, tt.stored, *first.IPAddress)

			_, err = r.Create(ctx, orgID, AgentInput{Name: "web-2", IPAddress: tt.second, OSType: "linux"})
			assert.ErrorIs(t, err, domain.ErrAgentIPConflict)
			assert.Equal(t, 1, store.Agents().Count())
		})
	}
}

func TestCreate_RejectsZonedIP(t *testing.T) {
	r, _ := newRegistry()
	_, err := r.Create(context.Background(), uuid.New(), AgentInput{Name: "web-1", IPAddress: "fe80::1%eth0", OSType: "linux"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegister_StoresCanonicalIP(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	orgID := uuid.New()

	agent, err := r.Register(ctx, orgID, Registration{Hostname: "db-1", IPAddress: "::FFFF:192.168.1.20"})
	require.NoError(t, err)
	require.NotNil(t, agent.IPAddress)
	assert.Equal(t, "192.168.1.20", *agent.IPAddress)

	_, err = r.Create(ctx, orgID, AgentInput{Name: "db-2", IPAddress: "192.168.1.20", OSType: "linux"})
	assert.ErrorIs(t, err, domain.ErrAgentIPConflict)
}

func TestDelete_ThenGetIsNotFound(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	orgID := uuid.New()

	a, err := r.Create(ctx, orgID, AgentInput{Name: "web-1", IPAddress: "10.0.0.5", OSType: "linux"})
	require.NoError(t, err)
	b, err := r.Create(ctx, orgID, AgentInput{Name: "web-2", IPAddress: "10.0.0.6", OSType: "linux"})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, orgID, a.ID))

	_, err = r.Get(ctx, orgID, a.ID)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	assert.ErrorIs(t, r.Delete(ctx, orgID, a.ID), domain.ErrAgentNotFound)

	agents, err := r.List(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, b.ID, agents[0].ID)
}

func TestCrossTenantIsolation(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry()
	orgA, orgB := uuid.New(), uuid.New()

	theirs, err := r.Create(ctx, orgB, AgentInput{Name: "db-1", IPAddress: "10.0.0.7", OSType: "linux"})
	require.NoError(t, err)

	_, err = r.Get(ctx, orgA, theirs.ID)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)

	_, err = r.Update(ctx, orgA, theirs.ID, AgentInput{Name: "pwned", IPAddress: "10.0.0.8", OSType: "linux"})
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)

	assert.ErrorIs(t, r.Delete(ctx, orgA, theirs.ID), domain.ErrAgentNotFound)

	listed, err := r.List(ctx, orgA)
	require.NoError(t, err)
	assert.Empty(t, listed)

	still, err := r.Get(ctx, orgB, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, "db-1", still.Name)
	assert.Equal(t, 1, store.Agents().Count())
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	orgID := uuid.New()

	a, err := r.Create(ctx, orgID, AgentInput{Name: "web-1", IPAddress: "10.0.0.5", OSType: "linux"})
	require.NoError(t, err)
	_, err = r.Create(ctx, orgID, AgentInput{Name: "web-2", IPAddress: "10.0.0.6", OSType: "linux"})
	require.NoError(t, err)

	updated, err := r.Update(ctx, orgID, a.ID, AgentInput{Name: "web-1-renamed", IPAddress: "10.0.0.9", OSType: "Windows"})
	require.NoError(t, err)
	assert.Equal(t, "web-1", updated.HostID)
	assert.Equal(t, "windows", updated.OSInfo)

	got, err := r.Get(ctx, orgID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "web-1-renamed", got.Name)

	_, err = r.Update(ctx, orgID, a.ID, AgentInput{Name: "web-1", IPAddress: "10.0.0.6", OSType: "linux"})
	assert.ErrorIs(t, err, domain.ErrAgentIPConflict)

	_, err = r.Update(ctx, orgID, a.ID, AgentInput{Name: "web-1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegister_UpsertsByHostID(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry()
	orgID := uuid.New()

	created, err := r.Create(ctx, orgID, AgentInput{Name: "web-1", IPAddress: "10.0.0.5", OSType: "linux"})
	require.NoError(t, err)

	registered, err := r.Register(ctx, orgID, Registration{
		HostID:       "web-1",
		Hostname:     "ip-10-0-0-5",
		IPAddress:    "10.0.0.5",
		Version:      "1.4.2",
		Capabilities: []string{"fim", "process-monitor"},
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, registered.ID)
	assert.Equal(t, "web-1", registered.Name)
	assert.Equal(t, "linux", registered.OSInfo)
	assert.Equal(t, domain.AgentStatusOnline, registered.Status)
	assert.NotNil(t, registered.LastSeen)
	assert.Equal(t, 1, store.Agents().Count())
}

func TestRegister_Headless(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	orgID := uuid.New()

	agent, err := r.Register(ctx, orgID, Registration{Hostname: "Build Box.local", OSType: "Ubuntu"})
	require.NoError(t, err)
	assert.Equal(t, "build-box-local", agent.HostID)
	assert.Nil(t, agent.IPAddress)
	assert.Equal(t, "ubuntu", agent.OSInfo)

	again, err := r.Register(ctx, orgID, Registration{Hostname: "Build Box.local", IPAddress: "192.168.1.20"})
	require.NoError(t, err)
	assert.Equal(t, agent.ID, again.ID)
	require.NotNil(t, again.IPAddress)
	assert.Equal(t, "192.168.1.20", *again.IPAddress)

	_, err = r.Register(ctx, orgID, Registration{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Register(ctx, orgID, Registration{Hostname: "x", IPAddress: "999.1.1.1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	orgID := uuid.New()

	a, err := r.Create(ctx, orgID, AgentInput{Name: "web-1", IPAddress: "10.0.0.5", OSType: "linux"})
	require.NoError(t, err)

	require.NoError(t, r.SetStatus(ctx, orgID, "web-1", "online"))
	got, err := r.Get(ctx, orgID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusOnline, got.Status)
	assert.Equal(t, "online", NewAgentView(got).Status)
	assert.NotNil(t, got.LastSeen)

	assert.ErrorIs(t, r.SetStatus(ctx, orgID, "web-1", "sleeping"), domain.ErrValidation)
	assert.ErrorIs(t, r.SetStatus(ctx, orgID, "nope", "online"), domain.ErrAgentNotFound)
	assert.ErrorIs(t, r.SetStatus(ctx, uuid.New(), "web-1", "online"), domain.ErrAgentNotFound)
}

func TestAgentView_JSON(t *testing.T) {
	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	agent := &domain.Agent{
		ID:             uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		HostID:         "edge-7",
		OrganizationID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Status:         domain.AgentStatusPending,
		Version:        "2.0.0",
		LastSeen:       &seen,
		CreatedAt:      seen,
	}

	data, err := json.Marshal(NewAgentView(agent))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "11111111-1111-1111-1111-111111111111",
		"name": "edge-7",
		"ipAddress": null,
		"osType": "linux",
		"status": "pending",
		"lastSeen": "2024-05-01T12:00:00Z",
		"agentVersion": "2.0.0",
		"organizationId": "22222222-2222-2222-2222-222222222222",
		"createdAt": "2024-05-01T12:00:00Z"
	}`, string(data))

	assert.NotNil(t, NewAgentViews(nil))
}

package installs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/agent-enroll/internal/http/middleware"
	"github.com/tendant/agent-enroll/pkg/domain"
	"github.com/tendant/agent-enroll/pkg/provision"
	"github.com/tendant/agent-enroll/pkg/registry"
	"github.com/tendant/agent-enroll/pkg/repository/memory"
)

type fixture struct {
	store    *memory.Store
	registry *registry.Registry
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	reg := registry.New(store.Agents(), logger)
	issuer := provision.NewIssuer(store.APIKeys(), provision.InstallConfig{
		InstallerBaseURL: "https://get.example.com/installer/",
		IngestAddress:    "ingest.example.com:9002",
	}, logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if org, err := uuid.Parse(req.Header.Get("X-Org")); err == nil {
				req = req.WithContext(middleware.WithOrganizationID(req.Context(), org))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(reg, issuer, logger).RegisterRoutes(r)
	return &fixture{store: store, registry: reg, router: r}
}

func (f *fixture) do(org uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Org", org.String())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) activeKey(t *testing.T, org uuid.UUID) *domain.APIKey {
	t.Helper()
	key, err := f.store.APIKeys().GetActiveByOrganization(context.Background(), org)
	require.NoError(t, err)
	return key
}

func TestInstallScript_Linux(t *testing.T) {
	f := newFixture(t)
	org := uuid.New()
	agent, err := f.registry.Create(context.Background(), org, registry.AgentInput{Name: "Web 1", IPAddress: "10.0.0.5", OSType: "linux"})
	require.NoError(t, err)

	rec := f.do(org, "GET", "/servers/"+agent.ID.String()+"/install-script", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp InstallScriptResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	key := f.activeKey(t, org)

	assert.Equal(t, "Web 1", resp.ServerName)
	assert.Equal(t, "linux", resp.OSType)
	assert.Equal(t, "10.0.0.5", resp.IPAddress)
	assert.NotContains(t, resp.Command, "\n")
	assert.True(t, strings.HasPrefix(resp.Command, "curl -fsSL https://get.example.com/installer/install.sh | sudo "))
	assert.Contains(t, resp.Command, "SM_TOKEN='"+key.Key+"'")
	assert.Contains(t, resp.Command, "SM_ORG_ID='"+org.String()+"'")
	assert.Contains(t, resp.Command, "SM_HOST_ID='web-1'")
	assert.Contains(t, resp.Command, "SM_INGEST_URL='ingest.example.com:9002'")

	// The same key is embedded on every request.
	rec = f.do(org, "GET", "/servers/"+agent.ID.String()+"/install-script", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), key.Key)
	assert.Equal(t, 1, f.store.APIKeys().CountActive(org))
}

func TestInstallScript_Windows(t *testing.T) {
	f := newFixture(t)
	org := uuid.New()
	agent, err := f.registry.Create(context.Background(), org, registry.AgentInput{Name: "win", IPAddress: "10.0.0.7", OSType: "windows"})
	require.NoError(t, err)

	rec := f.do(org, "GET", "/servers/"+agent.ID.String()+"/install-script", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InstallScriptResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	for _, line := range strings.Split(resp.Command, "\n") {
		assert.True(t, strings.HasPrefix(line, "#"), "executable line %q", line)
	}
}

func TestInstallScript_NotFound(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	agent, err := f.registry.Create(context.Background(), owner, registry.AgentInput{Name: "db", IPAddress: "10.0.0.8", OSType: "linux"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, f.do(uuid.New(), "GET", "/servers/"+agent.ID.String()+"/install-script", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(owner, "GET", "/servers/"+uuid.NewString()+"/install-script", "").Code)
	assert.Equal(t, 0, f.store.APIKeys().CountActive(owner))
}

func TestGenerateInstallCommand(t *testing.T) {
	f := newFixture(t)
	org := uuid.New()

	rec := f.do(org, "POST", "/servers/generate-install-command", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	key := f.activeKey(t, org)

	assert.Equal(t, "ingest.example.com:9002", resp.IngestAddress)
	assert.Equal(t, domain.TruncateKey(key.Key), resp.TruncatedToken)
	assert.True(t, strings.HasSuffix(resp.TruncatedToken, "..."))
	assert.Contains(t, resp.Command, "SM_TOKEN='"+key.Key+"'")
	assert.NotContains(t, resp.Command, "SM_HOST_ID")

	rec = f.do(org, "POST", "/servers/generate-install-command", `{"osType":"windows"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, strings.HasPrefix(resp.Command, "#"))
	assert.Equal(t, 1, f.store.APIKeys().CountActive(org))
}

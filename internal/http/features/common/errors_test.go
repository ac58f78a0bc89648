package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: name is required", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrUserNotFound, http.StatusUnauthorized},
		{domain.ErrSessionRevoked, http.StatusUnauthorized},
		{domain.ErrOrganizationNotProvisioned, http.StatusForbidden},
		{fmt.Errorf("get agent: %w", domain.ErrAgentNotFound), http.StatusNotFound},
		{domain.ErrAPIKeyNotFound, http.StatusNotFound},
		{domain.ErrAgentIPConflict, http.StatusConflict},
		{domain.ErrAgentHostConflict, http.StatusConflict},
		{errors.New("pq: connection refused"), http.StatusInternalServerError},
		// A raw store conflict that escaped its retry loop is internal.
		{domain.ErrConflict, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		err      error
		wantMsg  string
		wantCode string
	}{
		{"validation", fmt.Errorf("%w: missing required fields: name", domain.ErrValidation), "missing required fields: name", ""},
		{"not found", fmt.Errorf("delete: %w", domain.ErrAgentNotFound), "server not found", ""},
		{"unprovisioned", domain.ErrOrganizationNotProvisioned, domain.ErrOrganizationNotProvisioned.Error(), "organization_not_provisioned"},
		{"internal", errors.New("secret dsn leaked"), "internal server error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, logger, "op", tt.err)

			var body httputil.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantMsg, body.Error)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

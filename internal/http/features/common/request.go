package common

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/agent-enroll/internal/http/middleware"
	"github.com/tendant/agent-enroll/internal/httputil"
)

// OrganizationID returns the organization resolved by the middleware chain,
// writing a 401 when it is absent.
func OrganizationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orgID, ok := middleware.GetOrganizationID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
	}
	return orgID, ok
}

// PathID parses a UUID URL parameter. Malformed ids cannot name a record,
// so they are answered with notFound.
func PathID(w http.ResponseWriter, r *http.Request, name string, notFound error) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.Error(w, http.StatusNotFound, notFound.Error())
		return uuid.Nil, false
	}
	return id, true
}

// DecodeBody decodes a JSON body into v, writing 400 or 413 on failure.
func DecodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	if err := httputil.DecodeJSON(r, v, allowEmpty); err != nil {
		if middleware.IsBodyTooLarge(err) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// Package common holds helpers shared by the feature handlers.
package common

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tendant/agent-enroll/internal/http/middleware"
	"github.com/tendant/agent-enroll/internal/httputil"
	"github.com/tendant/agent-enroll/pkg/domain"
)

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrSessionRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrOrganizationNotProvisioned):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAgentNotFound),
		errors.Is(err, domain.ErrAPIKeyNotFound),
		errors.Is(err, domain.ErrOrganizationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAgentIPConflict),
		errors.Is(err, domain.ErrAgentHostConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the error envelope for err. Internal failures are
// logged with op and answered with a generic message.
func WriteError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error(op+" failed", "error", err)
		httputil.Error(w, status, "internal server error")
	case http.StatusUnauthorized:
		httputil.Error(w, status, "authentication required")
	case http.StatusForbidden:
		httputil.ErrorWithCode(w, status, middleware.CodeOrganizationNotProvisioned, err.Error())
	case http.StatusBadRequest:
		httputil.Error(w, status, strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
	default:
		httputil.Error(w, status, rootMessage(err))
	}
}

// rootMessage returns the message of the domain sentinel wrapped by err.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrAgentNotFound,
		domain.ErrAPIKeyNotFound,
		domain.ErrOrganizationNotFound,
		domain.ErrAgentIPConflict,
		domain.ErrAgentHostConflict,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

package httpsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/idframe/idframe/internal/domain/repository"
	"github.com/idframe/idframe/internal/observability/logger"
	"github.com/idframe/idframe/internal/registration"
	"github.com/idframe/idframe/internal/sso"
	"github.com/idframe/idframe/internal/trust"
)

// APIError is the wire shape every failure uses: a stable machine code plus
// a human message. Detail is optional and never carries internals.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// WithDetail returns a copy carrying extra client-safe detail.
func (e *APIError) WithDetail(detail string) *APIError {
	cp := *e
	cp.Detail = detail
	return &cp
}

var (
	errBadRequest   = &APIError{Code: "bad_request", Message: "Bad request", Status: http.StatusBadRequest}
	errInvalidJSON  = &APIError{Code: "invalid_json", Message: "Invalid JSON body", Status: http.StatusBadRequest}
	errUnauthorized = &APIError{Code: "invalid_token", Message: "Token validation failed", Status: http.StatusUnauthorized}
	errInternal     = &APIError{Code: "internal_error", Message: "Internal server error", Status: http.StatusInternalServerError}

	errInvitationNotFound      = &APIError{Code: "invitation_not_found", Message: "Invitation not found", Status: http.StatusNotFound}
	errInvitationNotAcceptable = &APIError{Code: "invitation_not_acceptable", Message: "Invitation already used or revoked", Status: http.StatusConflict}
	errInvitationExpired       = &APIError{Code: "invitation_expired", Message: "Invitation expired", Status: http.StatusGone}
	errDomainExists            = &APIError{Code: "domain_already_exists", Message: "Domain is already taken", Status: http.StatusConflict}
	errProviderNotConfigured   = &APIError{Code: "provider_not_configured", Message: "Provider not configured for this tenant", Status: http.StatusNotFound}
	errUnsupportedProvider     = &APIError{Code: "unsupported_provider", Message: "Unknown provider id", Status: http.StatusBadRequest}
	errSecurityConfiguration   = &APIError{Code: "security_configuration_error", Message: "Security configuration error", Status: http.StatusInternalServerError}
	errUpstreamUnavailable     = &APIError{Code: "upstream_unavailable", Message: "Upstream dependency unavailable", Status: http.StatusServiceUnavailable}
	errNotFound                = &APIError{Code: "not_found", Message: "Not found", Status: http.StatusNotFound}
	errConflict                = &APIError{Code: "conflict", Message: "Conflicting state", Status: http.StatusConflict}
)

// translate maps domain errors onto the wire taxonomy. Unknown errors come
// out as opaque 500s; their detail stays in the logs only.
func translate(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, registration.ErrInvitationNotFound):
		return errInvitationNotFound
	case errors.Is(err, registration.ErrInvitationNotAcceptable):
		return errInvitationNotAcceptable
	case errors.Is(err, registration.ErrInvitationExpired):
		return errInvitationExpired
	case errors.Is(err, registration.ErrDomainAlreadyExists):
		return errDomainExists
	case errors.Is(err, registration.ErrProviderNotConfigured),
		errors.Is(err, sso.ErrProviderNotConfigured):
		return errProviderNotConfigured
	case errors.Is(err, sso.ErrUnsupportedProvider):
		return errUnsupportedProvider
	case errors.Is(err, sso.ErrSecretUnavailable):
		return errSecurityConfiguration
	case errors.Is(err, trust.ErrTokenInvalid),
		errors.Is(err, trust.ErrIssuerNotAllowed),
		errors.Is(err, trust.ErrIssuerMissing):
		return errUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return errUpstreamUnavailable
	case errors.Is(err, repository.ErrInvalidInput):
		return errBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return errNotFound
	case errors.Is(err, repository.ErrConflict):
		return errConflict
	default:
		return errInternal
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := translate(err)
	if apiErr.Status >= http.StatusInternalServerError {
		// Full detail stays server-side.
		logger.From(r.Context()).Error("request failed",
			logger.Path(r.URL.Path),
			logger.Err(err),
		)
	}
	writeJSON(w, apiErr.Status, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

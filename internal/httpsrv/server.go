// Package httpsrv exposes the federation core over HTTP: token validation,
// client descriptor building, invitation lifecycle, and onboarding.
package httpsrv

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/idframe/idframe/internal/metrics"
	"github.com/idframe/idframe/internal/registration"
	"github.com/idframe/idframe/internal/sso"
	"github.com/idframe/idframe/internal/trust"
)

// Deps carries the wired components the handlers delegate to.
type Deps struct {
	TrustCache  *trust.Cache
	Allowlist   *trust.AllowlistResolver
	Builder     *sso.Builder
	Resolver    *sso.ConfigResolver
	Invitations *registration.InvitationService
	Validation  *registration.ValidationService
	Onboarding  *registration.OnboardingService
	Metrics     *metrics.Metrics
}

// Server owns the router.
type Server struct {
	deps Deps
	mux  *chi.Mux
}

// New builds the server and mounts all routes.
func New(deps Deps) *Server {
	s := &Server{deps: deps, mux: chi.NewRouter()}
	s.routes()
	return s
}

// Handler returns the root handler for http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.Use(requestLogger)
	s.mux.Use(requestMetrics(s.deps.Metrics))

	s.mux.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.mux.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.mux.Route("/v1", func(r chi.Router) {
		r.Post("/tokens/validate", s.handleValidateToken)
		r.Get("/trust/issuers", s.handleIssuerAllowlist)

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/domain-check", s.handleDomainCheck)
			r.Get("/{tenantID}/sso/providers", s.handleTenantProviders)
			r.Get("/{tenantID}/sso/clients/{provider}", s.handleBuildClient)
		})

		r.Route("/invitations", func(r chi.Router) {
			r.Post("/", s.handleCreateInvitation)
			r.Post("/{id}/accept", s.handleAcceptInvitation)
			r.Post("/{id}/revoke", s.handleRevokeInvitation)
			r.Get("/{id}/providers", s.handleInvitationProviders)
		})

		r.Post("/onboarding/sso", s.handleStartOnboarding)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

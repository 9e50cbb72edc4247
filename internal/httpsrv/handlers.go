package httpsrv

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/idframe/idframe/internal/registration"
	"github.com/idframe/idframe/internal/trust"
)

// flowCookieName carries the sealed onboarding flow across the provider
// round trip.
const flowCookieName = "sso_onboarding_flow"

// --- trust ---

type validateTokenRequest struct {
	Token string `json:"token"`
}

type principalResponse struct {
	Subject string         `json:"subject"`
	Issuer  string         `json:"issuer"`
	Email   string         `json:"email,omitempty"`
	Roles   []string       `json:"roles,omitempty"`
	Claims  map[string]any `json:"claims,omitempty"`
}

// handleValidateToken resolves a validator for the token's issuer and runs
// full validation. The validator itself comes from the trust cache, so
// repeated tokens from one issuer share a single discovery.
func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errInvalidJSON)
		return
	}
	if req.Token == "" {
		writeError(w, r, errBadRequest.WithDetail("token is required"))
		return
	}

	issuer, err := trust.ExtractIssuer(req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	validator, err := s.deps.TrustCache.Get(r.Context(), issuer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	principal, err := validator.Validate(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, principalResponse{
		Subject: principal.Subject,
		Issuer:  principal.Issuer,
		Email:   principal.Email,
		Roles:   principal.Roles,
		Claims:  principal.Claims,
	})
}

func (s *Server) handleIssuerAllowlist(w http.ResponseWriter, r *http.Request) {
	issuers, err := s.deps.Allowlist.ResolveIssuerURLs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issuers": issuers})
}

// --- sso ---

func (s *Server) handleTenantProviders(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	ids, err := s.deps.Resolver.ActiveProviderIDs(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": ids})
}

type clientDescriptorResponse struct {
	Provider         string   `json:"provider"`
	DisplayName      string   `json:"display_name"`
	ClientID         string   `json:"client_id"`
	AuthorizationURL string   `json:"authorization_url"`
	TokenURL         string   `json:"token_url"`
	JWKSetURL        string   `json:"jwk_set_url,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
	RedirectURI      string   `json:"redirect_uri,omitempty"`
}

// handleBuildClient materializes the OAuth2 client descriptor for
// (tenant, provider). The client secret never leaves the process.
func (s *Server) handleBuildClient(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	provider := chi.URLParam(r, "provider")

	desc, err := s.deps.Builder.BuildClient(r.Context(), tenantID, provider)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clientDescriptorResponse{
		Provider:         desc.Provider,
		DisplayName:      desc.DisplayName,
		ClientID:         desc.ClientID,
		AuthorizationURL: desc.AuthorizationURL,
		TokenURL:         desc.TokenURL,
		JWKSetURL:        desc.JWKSetURL,
		Scopes:           desc.Scopes,
		RedirectURI:      desc.RedirectURI,
	})
}

// --- tenants ---

func (s *Server) handleDomainCheck(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	if domain == "" {
		writeError(w, r, errBadRequest.WithDetail("domain query parameter is required"))
		return
	}
	if err := s.deps.Validation.EnsureTenantDomainAvailable(r.Context(), domain); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": true})
}

// --- invitations ---

type createInvitationRequest struct {
	TenantID string   `json:"tenant_id"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type invitationResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles,omitempty"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errInvalidJSON)
		return
	}
	if req.TenantID == "" {
		writeError(w, r, errBadRequest.WithDetail("tenant_id is required"))
		return
	}

	inv, err := s.deps.Invitations.CreateInvitation(r.Context(), req.TenantID, req.Email, req.Roles)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invitationResponse{
		ID:        inv.ID,
		TenantID:  inv.TenantID,
		Email:     inv.Email,
		Roles:     inv.Roles,
		Status:    string(inv.Status),
		ExpiresAt: inv.ExpiresAt,
	})
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Invitations.AcceptInvitation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invitationResponse{
		ID:        inv.ID,
		TenantID:  inv.TenantID,
		Email:     inv.Email,
		Roles:     inv.Roles,
		Status:    string(inv.Status),
		ExpiresAt: inv.ExpiresAt,
	})
}

func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Invitations.RevokeInvitation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvitationProviders(w http.ResponseWriter, r *http.Request) {
	ids, err := s.deps.Invitations.ProvidersForInvitation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": ids})
}

// --- onboarding ---

type startOnboardingRequest struct {
	Provider   string `json:"provider"`
	Domain     string `json:"domain"`
	TenantName string `json:"tenant_name"`
	Email      string `json:"email"`
}

type startOnboardingResponse struct {
	State        string `json:"state"`
	RedirectPath string `json:"redirect_path"`
}

// handleStartOnboarding validates the request and hands back the provider
// redirect. The sealed flow payload travels in an http-only cookie; only
// the state goes into the body.
func (s *Server) handleStartOnboarding(w http.ResponseWriter, r *http.Request) {
	var req startOnboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errInvalidJSON)
		return
	}

	init, err := s.deps.Onboarding.StartRegistration(r.Context(), registration.OnboardingRequest{
		Provider:   req.Provider,
		Domain:     req.Domain,
		TenantName: req.TenantName,
		Email:      req.Email,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    init.FlowPayload,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, startOnboardingResponse{
		State:        init.State,
		RedirectPath: init.RedirectPath,
	})
}

package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/idframe/idframe/internal/observability/logger"
	"github.com/idframe/idframe/internal/security/secretbox"
)

// OnboardingRequest starts an SSO sign-up for a tenant that does not exist
// yet. Authentication happens against the onboarding pseudo-tenant; the real
// tenant is created after the identity provider round trip completes.
type OnboardingRequest struct {
	Provider   string
	Domain     string
	TenantName string
	Email      string
}

// OnboardingFlow is the state carried across the provider round trip. It
// travels encrypted inside a cookie so the callback can restore it without
// server-side session storage.
type OnboardingFlow struct {
	State      string    `json:"state"`
	Provider   string    `json:"provider"`
	Domain     string    `json:"domain"`
	TenantName string    `json:"tenant_name"`
	Email      string    `json:"email"`
	IssuedAt   time.Time `json:"issued_at"`
}

// OnboardingInit is what the caller needs to send the browser away:
// the CSRF state, the encrypted flow cookie value, and where to redirect.
type OnboardingInit struct {
	State        string
	FlowPayload  string
	RedirectPath string
}

// OnboardingService initiates SSO tenant onboarding flows.
type OnboardingService struct {
	validation *ValidationService
	cipher     *secretbox.Cipher
	now        func() time.Time
	log        *zap.Logger
}

// NewOnboardingService builds the service. now may be nil.
func NewOnboardingService(validation *ValidationService, cipher *secretbox.Cipher, now func() time.Time) *OnboardingService {
	if now == nil {
		now = time.Now
	}
	return &OnboardingService{
		validation: validation,
		cipher:     cipher,
		now:        now,
		log:        logger.Named("registration.onboarding"),
	}
}

// StartRegistration validates the request, mints the flow state, and returns
// the redirect that kicks off authentication with the provider under the
// onboarding pseudo-tenant.
func (s *OnboardingService) StartRegistration(ctx context.Context, req OnboardingRequest) (*OnboardingInit, error) {
	provider := s.validation.NormalizeProvider(req.Provider)

	if err := s.validation.EnsureProviderConfiguredForOnboarding(provider); err != nil {
		return nil, err
	}
	if err := s.validation.EnsureTenantDomainAvailable(ctx, req.Domain); err != nil {
		return nil, err
	}

	flow := OnboardingFlow{
		State:      uuid.NewString(),
		Provider:   provider,
		Domain:     req.Domain,
		TenantName: req.TenantName,
		Email:      req.Email,
		IssuedAt:   s.now(),
	}
	raw, err := json.Marshal(flow)
	if err != nil {
		return nil, fmt.Errorf("registration: encode flow: %w", err)
	}
	sealed, err := s.cipher.Encrypt(string(raw))
	if err != nil {
		return nil, fmt.Errorf("registration: seal flow: %w", err)
	}

	q := url.Values{}
	q.Set("tenant", OnboardingTenantID)
	q.Set("state", flow.State)

	s.log.Info("onboarding flow started",
		logger.Provider(provider),
		logger.String("domain", req.Domain),
	)
	return &OnboardingInit{
		State:        flow.State,
		FlowPayload:  sealed,
		RedirectPath: "/oauth2/authorization/" + provider + "?" + q.Encode(),
	}, nil
}

// ResumeFlow decrypts and decodes a flow payload minted by StartRegistration.
// The state inside must match the state echoed back by the provider; that
// comparison belongs to the caller, which also has the cookie.
func (s *OnboardingService) ResumeFlow(payload string) (*OnboardingFlow, error) {
	raw, err := s.cipher.Decrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("registration: unseal flow: %w", err)
	}
	var flow OnboardingFlow
	if err := json.Unmarshal([]byte(raw), &flow); err != nil {
		return nil, fmt.Errorf("registration: decode flow: %w", err)
	}
	return &flow, nil
}

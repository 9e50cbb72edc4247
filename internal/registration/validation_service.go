package registration

import (
	"context"
	"fmt"
	"strings"

	"github.com/idframe/idframe/internal/domain/repository"
	"github.com/idframe/idframe/internal/sso"
)

// OnboardingTenantID is the well-known pseudo-tenant used for SSO sign-up
// flows that start before any tenant exists.
const OnboardingTenantID = "onboarding"

// ValidationService runs the shared pre-flight checks for registration
// flows: domain uniqueness and provider-is-configured.
type ValidationService struct {
	tenants  repository.TenantRepository
	resolver *sso.ConfigResolver
}

// NewValidationService builds the service.
func NewValidationService(tenants repository.TenantRepository, resolver *sso.ConfigResolver) *ValidationService {
	return &ValidationService{tenants: tenants, resolver: resolver}
}

// EnsureTenantDomainAvailable fails with ErrDomainAlreadyExists when a
// tenant already owns the domain. Comparison is case-insensitive.
func (s *ValidationService) EnsureTenantDomainAvailable(ctx context.Context, domain string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return fmt.Errorf("registration: %w: blank domain", repository.ErrInvalidInput)
	}
	taken, err := s.tenants.ExistsByDomain(ctx, domain)
	if err != nil {
		return fmt.Errorf("registration: check domain: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrDomainAlreadyExists, domain)
	}
	return nil
}

// NormalizeProvider lower-cases and trims a caller-supplied provider id.
func (s *ValidationService) NormalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// EnsureProviderConfiguredForTenant fails with ErrProviderNotConfigured
// unless the provider is in the tenant's active set.
func (s *ValidationService) EnsureProviderConfiguredForTenant(ctx context.Context, tenantID, provider string) error {
	provider = s.NormalizeProvider(provider)
	ids, err := s.resolver.ActiveProviderIDs(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("registration: list providers: %w", err)
	}
	for _, id := range ids {
		if id == provider {
			return nil
		}
	}
	return fmt.Errorf("%w: %s for tenant %s", ErrProviderNotConfigured, provider, tenantID)
}

// EnsureProviderConfiguredForOnboarding is the pre-tenant variant: the flow
// has no tenant yet, so only system-level default credentials count.
func (s *ValidationService) EnsureProviderConfiguredForOnboarding(provider string) error {
	provider = s.NormalizeProvider(provider)
	for _, id := range s.resolver.DefaultProviderIDs() {
		if id == provider {
			return nil
		}
	}
	return fmt.Errorf("%w: %s for onboarding", ErrProviderNotConfigured, provider)
}

package sso

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Errors for client building.
var (
	// ErrProviderNotConfigured means the tenant has no active config for the
	// provider. Expected and non-retryable; not a system fault.
	ErrProviderNotConfigured = errors.New("sso: provider not configured for tenant")

	// ErrUnsupportedProvider means no strategy is registered for the
	// provider id.
	ErrUnsupportedProvider = errors.New("sso: unsupported provider")
)

// Strategy builds a client descriptor for one provider type.
type Strategy interface {
	ProviderID() string
	BuildClient(ctx context.Context, tenantID string) (*ClientDescriptor, error)
}

// baseStrategy carries the behavior shared by every provider: fetch active
// config, decrypt the secret, resolve template URLs, name the client.
type baseStrategy struct {
	provider string
	resolver *ConfigResolver
	template *Template
}

func (s *baseStrategy) ProviderID() string { return s.provider }

func (s *baseStrategy) BuildClient(ctx context.Context, tenantID string) (*ClientDescriptor, error) {
	cfg, err := s.resolver.ActiveConfig(ctx, tenantID, s.provider)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrProviderNotConfigured, tenantID, s.provider)
	}

	secret, err := s.resolver.DecryptedSecret(cfg)
	if err != nil {
		return nil, err
	}

	t := s.template
	return &ClientDescriptor{
		Provider:         s.provider,
		TenantID:         tenantID,
		ClientID:         cfg.ClientID,
		ClientSecret:     secret,
		AuthorizationURL: t.ResolveAuthorizationURL(cfg.ProviderSubTenantID),
		TokenURL:         t.ResolveTokenURL(cfg.ProviderSubTenantID),
		UserInfoURL:      t.UserInfoURL,
		JWKSetURL:        t.ResolveJWKSetURL(cfg.ProviderSubTenantID),
		RedirectURI:      t.LoginRedirectURI,
		Scopes:           append([]string(nil), t.Scopes...),
		DisplayName:      displayName(s.provider, tenantID),
	}, nil
}

// NewGoogleStrategy builds the Google strategy from the catalog template.
func NewGoogleStrategy(resolver *ConfigResolver, catalog *Catalog) Strategy {
	return &baseStrategy{provider: ProviderGoogle, resolver: resolver, template: catalog.Template(ProviderGoogle)}
}

// NewMicrosoftStrategy builds the Microsoft strategy. The template carries
// the sub-tenant placeholder; substitution happens in the shared base.
func NewMicrosoftStrategy(resolver *ConfigResolver, catalog *Catalog) Strategy {
	return &baseStrategy{provider: ProviderMicrosoft, resolver: resolver, template: catalog.Template(ProviderMicrosoft)}
}

// NewGenericOIDCStrategy builds the strategy for arbitrary OIDC issuers.
// The generic template has no fixed endpoints; they come from the tenant's
// issuer via discovery at flow time, so the descriptor carries whatever the
// template was configured with.
func NewGenericOIDCStrategy(resolver *ConfigResolver, catalog *Catalog) Strategy {
	return &baseStrategy{provider: ProviderOIDC, resolver: resolver, template: catalog.Template(ProviderOIDC)}
}

// Registry maps provider ids to strategies. Populated explicitly at startup;
// there is no implicit collection of implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds a registry from the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	m := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		m[strings.ToLower(s.ProviderID())] = s
	}
	return &Registry{strategies: m}
}

// Register adds or replaces a strategy.
func (r *Registry) Register(s Strategy) {
	r.strategies[strings.ToLower(s.ProviderID())] = s
}

// Lookup returns the strategy for a provider id, or nil.
func (r *Registry) Lookup(provider string) Strategy {
	return r.strategies[strings.ToLower(provider)]
}

package repository

import (
	"context"
	"time"
)

// TenantSSOConfig is one tenant's configuration for a single identity
// provider. Only rows with Enabled=true and non-blank credentials are
// considered active.
type TenantSSOConfig struct {
	ID                    string
	TenantID              string
	Provider              string // provider id, lower-case ("google", "microsoft", "oidc")
	ClientID              string
	EncryptedClientSecret string
	// ProviderSubTenantID routes to an organization-specific authorization
	// endpoint for providers whose URL templates carry a sub-tenant
	// placeholder (Microsoft). Empty for everyone else.
	ProviderSubTenantID string
	Enabled             bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Active reports whether the row is usable for starting a federation flow.
func (c *TenantSSOConfig) Active() bool {
	return c != nil && c.Enabled && c.ClientID != "" && c.EncryptedClientSecret != ""
}

// SSOConfigRepository defines lookups over per-tenant provider configs.
type SSOConfigRepository interface {
	// GetActive fetches the enabled config for (tenantID, provider).
	// Returns ErrNotFound when no enabled row exists; a disabled row is
	// indistinguishable from an absent one on purpose.
	GetActive(ctx context.Context, tenantID, provider string) (*TenantSSOConfig, error)

	// ListActive returns all enabled configs for a tenant.
	ListActive(ctx context.Context, tenantID string) ([]TenantSSOConfig, error)

	// Upsert creates or replaces the row for (tenantID, provider).
	Upsert(ctx context.Context, cfg *TenantSSOConfig) error
}

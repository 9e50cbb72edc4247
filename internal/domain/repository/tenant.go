package repository

import (
	"context"
	"time"
)

// Tenant is a customer organization. Each tenant owns its own domain, SSO
// configuration, and issuer identity.
type Tenant struct {
	ID        string
	Name      string
	Domain    string // globally unique, compared case-insensitively
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantRepository defines lookups over tenant records.
type TenantRepository interface {
	// GetByID fetches a tenant by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*Tenant, error)

	// ExistsByDomain reports whether a tenant owns the domain.
	// The comparison is case-insensitive.
	ExistsByDomain(ctx context.Context, domain string) (bool, error)

	// Representative returns the single tenant this deployment shard serves.
	// The issuer allowlist is derived from it: the store runs one trust
	// process per tenant shard, so "which tenant" is a deployment property,
	// not a request property. Returns ErrNotFound when no tenant exists yet.
	Representative(ctx context.Context) (*Tenant, error)
}

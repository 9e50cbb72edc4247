package sso

import (
	"context"
	"fmt"

	"github.com/idframe/idframe/internal/observability/logger"
)

// Builder dispatches client building to the strategy registered for the
// provider id.
type Builder struct {
	registry *Registry
}

// NewBuilder builds a Builder over an explicitly populated registry.
func NewBuilder(registry *Registry) *Builder {
	return &Builder{registry: registry}
}

// BuildClient assembles a descriptor for (tenantID, providerID).
// Fails with ErrUnsupportedProvider for unknown provider ids and
// ErrProviderNotConfigured when the tenant has no active config.
func (b *Builder) BuildClient(ctx context.Context, tenantID, providerID string) (*ClientDescriptor, error) {
	s := b.registry.Lookup(providerID)
	if s == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, providerID)
	}

	desc, err := s.BuildClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	logger.From(ctx).Debug("built client descriptor",
		logger.Component("sso.builder"),
		logger.TenantID(tenantID),
		logger.Provider(providerID),
	)
	return desc, nil
}

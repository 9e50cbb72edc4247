package trust

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/idframe/idframe/internal/domain/repository"
	"github.com/idframe/idframe/internal/metrics"
	"github.com/idframe/idframe/internal/observability/logger"
	"golang.org/x/sync/singleflight"
)

// AllowlistResolver computes the issuer strings that are legitimately
// trusted right now, derived from the deployment's representative tenant
// plus the configured super tenant.
//
// The result is cached process-wide. Concurrent callers before the first
// resolution share one in-flight lookup; a failed lookup is not cached, so
// the next call retries cleanly.
type AllowlistResolver struct {
	tenants       repository.TenantRepository
	issuerBase    string
	superTenantID string
	lookupTimeout time.Duration
	metrics       *metrics.Metrics

	sf     singleflight.Group
	cached atomic.Pointer[[]string]
}

// NewAllowlistResolver builds a resolver. issuerBase is the URL tenant
// issuers derive from ({base}/{tenantId}); superTenantID may be empty.
// m may be nil.
func NewAllowlistResolver(tenants repository.TenantRepository, issuerBase, superTenantID string, lookupTimeout time.Duration, m *metrics.Metrics) *AllowlistResolver {
	if lookupTimeout <= 0 {
		lookupTimeout = 5 * time.Second
	}
	return &AllowlistResolver{
		tenants:       tenants,
		issuerBase:    strings.TrimRight(issuerBase, "/"),
		superTenantID: superTenantID,
		lookupTimeout: lookupTimeout,
		metrics:       m,
	}
}

// ResolveIssuerURLs returns the trusted issuer list, performing at most one
// underlying tenant lookup regardless of request concurrency. Once resolved
// the list is never empty and contains no duplicates.
func (r *AllowlistResolver) ResolveIssuerURLs(ctx context.Context) ([]string, error) {
	if v := r.cached.Load(); v != nil {
		return *v, nil
	}

	out, err, _ := r.sf.Do("issuers", func() (any, error) {
		// A racing caller may have finished while we queued.
		if v := r.cached.Load(); v != nil {
			return *v, nil
		}

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
		defer cancel()

		tenant, err := r.tenants.Representative(lctx)
		if err != nil {
			r.countResolve("error")
			return nil, fmt.Errorf("trust: resolve allowlist: %w", err)
		}

		list := r.derive(tenant.ID)
		r.cached.Store(&list)
		r.countResolve("ok")

		logger.From(ctx).Info("issuer allowlist resolved",
			logger.Component("trust.allowlist"),
			logger.TenantID(tenant.ID),
			logger.Count(len(list)),
		)
		return list, nil
	})
	if err != nil {
		// Nothing was cached; the next caller retries instead of replaying
		// this failure.
		return nil, err
	}
	return out.([]string), nil
}

// CachedIssuerURLs returns the last successfully resolved list without
// blocking. When nothing is cached yet it kicks off a background resolution
// and returns an empty list.
func (r *AllowlistResolver) CachedIssuerURLs() []string {
	if v := r.cached.Load(); v != nil {
		return *v
	}
	go func() {
		if _, err := r.ResolveIssuerURLs(context.Background()); err != nil {
			logger.L().Warn("background allowlist resolution failed",
				logger.Component("trust.allowlist"),
				logger.Err(err),
			)
		}
	}()
	return nil
}

// derive builds the de-duplicated issuer list for a tenant id.
func (r *AllowlistResolver) derive(tenantID string) []string {
	tenantIssuer := r.issuerBase + "/" + tenantID
	list := []string{tenantIssuer}
	if r.superTenantID != "" {
		superIssuer := r.issuerBase + "/" + r.superTenantID
		if superIssuer != tenantIssuer {
			list = append(list, superIssuer)
		}
	}
	return list
}

func (r *AllowlistResolver) countResolve(result string) {
	if r.metrics != nil {
		r.metrics.AllowlistResolves.WithLabelValues(result).Inc()
	}
}

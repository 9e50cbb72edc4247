// Package memory keeps everything in process memory. Zero-config default
// for development and the backend every repository test runs against.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/idframe/idframe/internal/domain/repository"
)

// Store holds the in-memory tables behind a single lock.
type Store struct {
	mu          sync.RWMutex
	tenants     map[string]*repository.Tenant
	ssoConfigs  map[string]*repository.TenantSSOConfig // key: tenantID + "/" + provider
	invitations map[string]*repository.Invitation

	// tenantOrder remembers insertion order so Representative is stable.
	tenantOrder []string
}

// New builds an empty store.
func New() *Store {
	return &Store{
		tenants:     map[string]*repository.Tenant{},
		ssoConfigs:  map[string]*repository.TenantSSOConfig{},
		invitations: map[string]*repository.Invitation{},
	}
}

func (s *Store) Tenants() repository.TenantRepository         { return (*tenantRepo)(s) }
func (s *Store) SSOConfigs() repository.SSOConfigRepository   { return (*ssoConfigRepo)(s) }
func (s *Store) Invitations() repository.InvitationRepository { return (*invitationRepo)(s) }

// --- tenants ---

type tenantRepo Store

// PutTenant seeds a tenant. Used by tests and dev bootstrap.
func (s *Store) PutTenant(t *repository.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; !ok {
		s.tenantOrder = append(s.tenantOrder, t.ID)
	}
	cp := *t
	s.tenants[t.ID] = &cp
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*repository.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *tenantRepo) ExistsByDomain(ctx context.Context, domain string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if strings.EqualFold(t.Domain, domain) {
			return true, nil
		}
	}
	return false, nil
}

func (r *tenantRepo) Representative(ctx context.Context) (*repository.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.tenantOrder) == 0 {
		return nil, repository.ErrNotFound
	}
	cp := *r.tenants[r.tenantOrder[0]]
	return &cp, nil
}

// --- sso configs ---

type ssoConfigRepo Store

func configKey(tenantID, provider string) string {
	return tenantID + "/" + strings.ToLower(provider)
}

func (r *ssoConfigRepo) GetActive(ctx context.Context, tenantID, provider string) (*repository.TenantSSOConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.ssoConfigs[configKey(tenantID, provider)]
	if !ok || !cfg.Enabled {
		return nil, repository.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (r *ssoConfigRepo) ListActive(ctx context.Context, tenantID string) ([]repository.TenantSSOConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []repository.TenantSSOConfig
	for _, cfg := range r.ssoConfigs {
		if cfg.TenantID == tenantID && cfg.Enabled {
			out = append(out, *cfg)
		}
	}
	return out, nil
}

func (r *ssoConfigRepo) Upsert(ctx context.Context, cfg *repository.TenantSSOConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	cp.Provider = strings.ToLower(cp.Provider)
	cp.UpdatedAt = time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	r.ssoConfigs[configKey(cp.TenantID, cp.Provider)] = &cp
	return nil
}

// --- invitations ---

type invitationRepo Store

func (r *invitationRepo) GetByID(ctx context.Context, id string) (*repository.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invitations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	cp.Roles = append([]string(nil), inv.Roles...)
	return &cp, nil
}

func (r *invitationRepo) Create(ctx context.Context, inv *repository.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invitations[inv.ID]; ok {
		return repository.ErrConflict
	}
	cp := *inv
	cp.Roles = append([]string(nil), inv.Roles...)
	r.invitations[inv.ID] = &cp
	return nil
}

func (r *invitationRepo) UpdateStatus(ctx context.Context, id string, from, to repository.InvitationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[id]
	if !ok {
		return repository.ErrNotFound
	}
	if inv.Status != from {
		return repository.ErrConflict
	}
	inv.Status = to
	inv.UpdatedAt = time.Now()
	return nil
}

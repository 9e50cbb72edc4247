// Package pg backs the repositories with PostgreSQL through pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idframe/idframe/internal/domain/repository"
)

// Store wraps the shared connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New opens the pool, pings it, and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Tenants() repository.TenantRepository         { return &tenantRepo{pool: s.pool} }
func (s *Store) SSOConfigs() repository.SSOConfigRepository   { return &ssoConfigRepo{pool: s.pool} }
func (s *Store) Invitations() repository.InvitationRepository { return &invitationRepo{pool: s.pool} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- tenants ---

type tenantRepo struct {
	pool *pgxpool.Pool
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*repository.Tenant, error) {
	const query = `
		SELECT id, name, domain, owner_id, created_at, updated_at
		FROM tenant WHERE id = $1
	`
	var t repository.Tenant
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Domain, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get tenant: %w", err)
	}
	return &t, nil
}

func (r *tenantRepo) ExistsByDomain(ctx context.Context, domain string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM tenant WHERE lower(domain) = lower($1))`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, domain).Scan(&exists); err != nil {
		return false, fmt.Errorf("pg: domain exists: %w", err)
	}
	return exists, nil
}

func (r *tenantRepo) Representative(ctx context.Context) (*repository.Tenant, error) {
	const query = `
		SELECT id, name, domain, owner_id, created_at, updated_at
		FROM tenant ORDER BY created_at LIMIT 1
	`
	var t repository.Tenant
	err := r.pool.QueryRow(ctx, query).Scan(
		&t.ID, &t.Name, &t.Domain, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: representative tenant: %w", err)
	}
	return &t, nil
}

// --- sso configs ---

type ssoConfigRepo struct {
	pool *pgxpool.Pool
}

func (r *ssoConfigRepo) GetActive(ctx context.Context, tenantID, provider string) (*repository.TenantSSOConfig, error) {
	const query = `
		SELECT id, tenant_id, provider, client_id, encrypted_client_secret,
		       provider_sub_tenant_id, enabled, created_at, updated_at
		FROM tenant_sso_config
		WHERE tenant_id = $1 AND provider = $2 AND enabled
	`
	var c repository.TenantSSOConfig
	err := r.pool.QueryRow(ctx, query, tenantID, strings.ToLower(provider)).Scan(
		&c.ID, &c.TenantID, &c.Provider, &c.ClientID, &c.EncryptedClientSecret,
		&c.ProviderSubTenantID, &c.Enabled, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get sso config: %w", err)
	}
	return &c, nil
}

func (r *ssoConfigRepo) ListActive(ctx context.Context, tenantID string) ([]repository.TenantSSOConfig, error) {
	const query = `
		SELECT id, tenant_id, provider, client_id, encrypted_client_secret,
		       provider_sub_tenant_id, enabled, created_at, updated_at
		FROM tenant_sso_config
		WHERE tenant_id = $1 AND enabled
		ORDER BY provider
	`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("pg: list sso configs: %w", err)
	}
	defer rows.Close()

	var out []repository.TenantSSOConfig
	for rows.Next() {
		var c repository.TenantSSOConfig
		if err := rows.Scan(
			&c.ID, &c.TenantID, &c.Provider, &c.ClientID, &c.EncryptedClientSecret,
			&c.ProviderSubTenantID, &c.Enabled, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("pg: scan sso config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ssoConfigRepo) Upsert(ctx context.Context, cfg *repository.TenantSSOConfig) error {
	const query = `
		INSERT INTO tenant_sso_config
			(id, tenant_id, provider, client_id, encrypted_client_secret,
			 provider_sub_tenant_id, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			encrypted_client_secret = EXCLUDED.encrypted_client_secret,
			provider_sub_tenant_id = EXCLUDED.provider_sub_tenant_id,
			enabled = EXCLUDED.enabled,
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query,
		cfg.ID, cfg.TenantID, strings.ToLower(cfg.Provider), cfg.ClientID,
		cfg.EncryptedClientSecret, cfg.ProviderSubTenantID, cfg.Enabled,
	)
	if err != nil {
		return fmt.Errorf("pg: upsert sso config: %w", err)
	}
	return nil
}

// --- invitations ---

type invitationRepo struct {
	pool *pgxpool.Pool
}

func (r *invitationRepo) GetByID(ctx context.Context, id string) (*repository.Invitation, error) {
	const query = `
		SELECT id, tenant_id, email, roles, status, expires_at, created_at, updated_at
		FROM invitation WHERE id = $1
	`
	var inv repository.Invitation
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&inv.ID, &inv.TenantID, &inv.Email, &inv.Roles, &inv.Status,
		&inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get invitation: %w", err)
	}
	return &inv, nil
}

func (r *invitationRepo) Create(ctx context.Context, inv *repository.Invitation) error {
	const query = `
		INSERT INTO invitation
			(id, tenant_id, email, roles, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		inv.ID, inv.TenantID, inv.Email, inv.Roles, string(inv.Status),
		inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pg: create invitation: %w", err)
	}
	return nil
}

func (r *invitationRepo) UpdateStatus(ctx context.Context, id string, from, to repository.InvitationStatus) error {
	// Conditional on current status so concurrent transitions resolve to
	// exactly one winner.
	const query = `
		UPDATE invitation SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("pg: update invitation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		const existsQuery = `SELECT EXISTS (SELECT 1 FROM invitation WHERE id = $1)`
		var exists bool
		if err := r.pool.QueryRow(ctx, existsQuery, id).Scan(&exists); err != nil {
			return fmt.Errorf("pg: update invitation status: %w", err)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}
	return nil
}

package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Statements are idempotent so restarting
// against an existing database is a no-op.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenant (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		domain     TEXT NOT NULL,
		owner_id   TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tenant_domain_lower_idx
		ON tenant (lower(domain))`,

	`CREATE TABLE IF NOT EXISTS tenant_sso_config (
		id                      TEXT PRIMARY KEY,
		tenant_id               TEXT NOT NULL,
		provider                TEXT NOT NULL,
		client_id               TEXT NOT NULL DEFAULT '',
		encrypted_client_secret TEXT NOT NULL DEFAULT '',
		provider_sub_tenant_id  TEXT NOT NULL DEFAULT '',
		enabled                 BOOLEAN NOT NULL DEFAULT false,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (tenant_id, provider)
	)`,

	`CREATE TABLE IF NOT EXISTS invitation (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		email      TEXT NOT NULL,
		roles      TEXT[] NOT NULL DEFAULT '{}',
		status     TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS invitation_tenant_idx
		ON invitation (tenant_id)`,
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pg: ensure schema: %w", err)
		}
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "memory" || cfg.Cache.Driver != "memory" {
		t.Fatalf("unexpected drivers: %s/%s", cfg.Storage.Driver, cfg.Cache.Driver)
	}
	if cfg.Trust.Cache.MaxEntries != 100 {
		t.Fatalf("unexpected max entries: %d", cfg.Trust.Cache.MaxEntries)
	}
	if cfg.Trust.Cache.RefreshAfter >= cfg.Trust.Cache.ExpireAfter {
		t.Fatal("default refresh window must be shorter than expiry")
	}
	if cfg.Invitations.TTL != 7*24*time.Hour {
		t.Fatalf("unexpected invitation ttl: %s", cfg.Invitations.TTL)
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
storage:
  driver: postgres
  postgres:
    dsn: postgres://localhost/idframe
trust:
  local_issuer: https://self.example.com
  allowed_issuer_base: https://issuers.example.com
  super_tenant_id: root
  cache:
    max_entries: 10
    expire_after: 20s
    refresh_after: 10s
sso:
  defaults:
    google:
      client_id: g-id
      client_secret: g-secret
`)
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("TRUST_CACHE_MAX_ENTRIES", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Env wins over file.
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("env override lost: %s", cfg.Server.Addr)
	}
	if cfg.Trust.Cache.MaxEntries != 5 {
		t.Fatalf("env override lost: %d", cfg.Trust.Cache.MaxEntries)
	}
	if cfg.Storage.Postgres.DSN != "postgres://localhost/idframe" {
		t.Fatalf("file value lost: %s", cfg.Storage.Postgres.DSN)
	}
	if cfg.Trust.Cache.ExpireAfter != 20*time.Second {
		t.Fatalf("unexpected expire_after: %s", cfg.Trust.Cache.ExpireAfter)
	}
	creds, ok := cfg.SSO.Defaults["google"]
	if !ok || creds.ClientID != "g-id" || creds.ClientSecret != "g-secret" {
		t.Fatalf("unexpected defaults: %+v", cfg.SSO.Defaults)
	}
}

func TestLoad_RejectsBadCacheWindows(t *testing.T) {
	path := writeConfig(t, `
trust:
  cache:
    expire_after: 10s
    refresh_after: 10s
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for refresh_after >= expire_after")
	}
}

func TestLoad_RejectsUnknownStorageDriver(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: etcd
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown driver")
	}
}

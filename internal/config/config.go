// Package config loads the service configuration from YAML plus environment
// overrides. Every knob of the federation core (cache bounds, issuer base,
// super tenant) is externally supplied here; nothing is hard-coded.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		// memory | mongo | postgres
		Driver   string `yaml:"driver"`
		Mongo    struct {
			URI      string `yaml:"uri"`
			Database string `yaml:"database"`
		} `yaml:"mongo"`
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Driver string `yaml:"driver"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		// ProviderListTTL bounds how stale the cached per-tenant provider
		// list may be.
		ProviderListTTL time.Duration `yaml:"provider_list_ttl"`
	} `yaml:"cache"`

	Secrets struct {
		// MasterKey is the base64 AES-256 key for tenant client secrets.
		MasterKey string `yaml:"master_key"`
	} `yaml:"secrets"`

	Trust struct {
		// LocalIssuer is the issuer string this process signs tokens under.
		LocalIssuer string `yaml:"local_issuer"`
		// LocalPublicKeyPEM holds the Ed25519 public key validating
		// locally issued tokens (PEM, inline or via env).
		LocalPublicKeyPEM string `yaml:"local_public_key_pem"`
		// AllowedIssuerBase is the base URL tenant issuers derive from:
		// {base}/{tenantId}.
		AllowedIssuerBase string `yaml:"allowed_issuer_base"`
		// SuperTenantID optionally adds a second trusted issuer.
		SuperTenantID string `yaml:"super_tenant_id"`

		Cache struct {
			MaxEntries   int           `yaml:"max_entries"`
			ExpireAfter  time.Duration `yaml:"expire_after"`
			RefreshAfter time.Duration `yaml:"refresh_after"`
		} `yaml:"cache"`

		// DiscoveryTimeout bounds each OIDC discovery call.
		DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	} `yaml:"trust"`

	SSO struct {
		// Default credentials per provider; a tenant without its own row
		// falls back to these when present.
		Defaults map[string]struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
		} `yaml:"defaults"`

		// Providers overrides/extends the built-in URL templates.
		Providers map[string]ProviderTemplateConfig `yaml:"providers"`
	} `yaml:"sso"`

	Invitations struct {
		TTL time.Duration `yaml:"ttl"`
		// AcceptURLBase is the public URL the invitation email links to.
		AcceptURLBase string `yaml:"accept_url_base"`
	} `yaml:"invitations"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
}

// ProviderTemplateConfig mirrors an sso.Template in YAML form.
type ProviderTemplateConfig struct {
	AuthorizationURL        string   `yaml:"authorization_url"`
	TokenURL                string   `yaml:"token_url"`
	UserInfoURL             string   `yaml:"userinfo_url"`
	JWKSetURL               string   `yaml:"jwk_set_url"`
	Scopes                  []string `yaml:"scopes"`
	LoginRedirectURI        string   `yaml:"login_redirect_uri"`
	RegistrationRedirectURI string   `yaml:"registration_redirect_uri"`
}

// Load reads the YAML file at path (optional), applies defaults and env
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.ProviderListTTL == 0 {
		c.Cache.ProviderListTTL = 30 * time.Second
	}
	if c.Trust.Cache.MaxEntries == 0 {
		c.Trust.Cache.MaxEntries = 100
	}
	if c.Trust.Cache.ExpireAfter == 0 {
		c.Trust.Cache.ExpireAfter = time.Hour
	}
	if c.Trust.Cache.RefreshAfter == 0 {
		c.Trust.Cache.RefreshAfter = 30 * time.Minute
	}
	if c.Trust.DiscoveryTimeout == 0 {
		c.Trust.DiscoveryTimeout = 10 * time.Second
	}
	if c.Invitations.TTL == 0 {
		c.Invitations.TTL = 7 * 24 * time.Hour
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks invariants that would otherwise surface as runtime
// surprises much later.
func (c *Config) Validate() error {
	if c.Trust.Cache.RefreshAfter >= c.Trust.Cache.ExpireAfter {
		return fmt.Errorf("config: trust.cache.refresh_after (%s) must be shorter than expire_after (%s)",
			c.Trust.Cache.RefreshAfter, c.Trust.Cache.ExpireAfter)
	}
	if c.Trust.Cache.MaxEntries < 1 {
		return fmt.Errorf("config: trust.cache.max_entries must be positive")
	}
	switch c.Storage.Driver {
	case "memory", "mongo", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("MONGO_URI"); ok {
		c.Storage.Mongo.URI = v
	}
	if v, ok := getEnvStr("MONGO_DATABASE"); ok {
		c.Storage.Mongo.Database = v
	}
	if v, ok := getEnvStr("POSTGRES_DSN"); ok {
		c.Storage.Postgres.DSN = v
	}

	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Cache.Driver = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Secrets.MasterKey = v
	}

	if v, ok := getEnvStr("TRUST_LOCAL_ISSUER"); ok {
		c.Trust.LocalIssuer = v
	}
	if v, ok := getEnvStr("TRUST_LOCAL_PUBLIC_KEY_PEM"); ok {
		c.Trust.LocalPublicKeyPEM = v
	}
	if v, ok := getEnvStr("TRUST_ALLOWED_ISSUER_BASE"); ok {
		c.Trust.AllowedIssuerBase = v
	}
	if v, ok := getEnvStr("TRUST_SUPER_TENANT_ID"); ok {
		c.Trust.SuperTenantID = v
	}
	if v, ok := getEnvInt("TRUST_CACHE_MAX_ENTRIES"); ok {
		c.Trust.Cache.MaxEntries = v
	}
	if v, ok := getEnvDur("TRUST_CACHE_EXPIRE_AFTER"); ok {
		c.Trust.Cache.ExpireAfter = v
	}
	if v, ok := getEnvDur("TRUST_CACHE_REFRESH_AFTER"); ok {
		c.Trust.Cache.RefreshAfter = v
	}
	if v, ok := getEnvDur("TRUST_DISCOVERY_TIMEOUT"); ok {
		c.Trust.DiscoveryTimeout = v
	}

	if v, ok := getEnvDur("INVITATIONS_TTL"); ok {
		c.Invitations.TTL = v
	}
	if v, ok := getEnvStr("INVITATIONS_ACCEPT_URL_BASE"); ok {
		c.Invitations.AcceptURLBase = v
	}

	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

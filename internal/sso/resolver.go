package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/idframe/idframe/internal/cache"
	"github.com/idframe/idframe/internal/domain/repository"
	"github.com/idframe/idframe/internal/observability/logger"
	"github.com/idframe/idframe/internal/security/secretbox"
)

// Errors for config resolution.
var (
	// ErrSecretUnavailable means a stored client secret could not be
	// decrypted. The ciphertext is never surfaced through this error.
	ErrSecretUnavailable = errors.New("sso: client secret unavailable")
)

// DefaultCredentials are system-level fallback credentials for a provider.
// A tenant without its own config row can still use the provider when these
// are present.
type DefaultCredentials struct {
	Provider     string
	ClientID     string
	ClientSecret string
}

// ConfigResolver returns the effective per-tenant provider configuration.
type ConfigResolver struct {
	configs  repository.SSOConfigRepository
	cipher   *secretbox.Cipher
	defaults []DefaultCredentials

	// providerList caches ActiveProviderIDs briefly; invitation/onboarding
	// flows hit it on every page load.
	providerList cache.Client
	listTTL      time.Duration
}

// NewConfigResolver builds a resolver. providerList may be nil to disable
// caching.
func NewConfigResolver(
	configs repository.SSOConfigRepository,
	cipher *secretbox.Cipher,
	defaults []DefaultCredentials,
	providerList cache.Client,
	listTTL time.Duration,
) *ConfigResolver {
	return &ConfigResolver{
		configs:      configs,
		cipher:       cipher,
		defaults:     defaults,
		providerList: providerList,
		listTTL:      listTTL,
	}
}

// ActiveConfig returns the enabled config for (tenantID, provider), or
// (nil, nil) when none exists. Absence is a legitimate outcome, not an
// error: it simply means the provider is not usable for that tenant.
//
// When the tenant has no row but system-level default credentials exist for
// the provider, a synthetic enabled config is returned. Its secret is
// encrypted on the way out so the decrypt path stays uniform.
func (r *ConfigResolver) ActiveConfig(ctx context.Context, tenantID, provider string) (*repository.TenantSSOConfig, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))

	cfg, err := r.configs.GetActive(ctx, tenantID, provider)
	if err != nil && !repository.IsNotFound(err) {
		return nil, fmt.Errorf("sso: load config: %w", err)
	}
	if cfg.Active() {
		return cfg, nil
	}

	return r.fromDefaults(tenantID, provider)
}

func (r *ConfigResolver) fromDefaults(tenantID, provider string) (*repository.TenantSSOConfig, error) {
	for _, d := range r.defaults {
		if !strings.EqualFold(d.Provider, provider) || d.ClientID == "" || d.ClientSecret == "" {
			continue
		}
		enc, err := r.cipher.Encrypt(d.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
		}
		return &repository.TenantSSOConfig{
			TenantID:              tenantID,
			Provider:              provider,
			ClientID:              d.ClientID,
			EncryptedClientSecret: enc,
			Enabled:               true,
		}, nil
	}
	return nil, nil
}

// DecryptedSecret decrypts the stored client secret. Fails with
// ErrSecretUnavailable when decryption fails; it never falls back to the
// ciphertext or an empty string.
func (r *ConfigResolver) DecryptedSecret(cfg *repository.TenantSSOConfig) (string, error) {
	if cfg == nil || cfg.EncryptedClientSecret == "" {
		return "", ErrSecretUnavailable
	}
	plain, err := r.cipher.Decrypt(cfg.EncryptedClientSecret)
	if err != nil {
		// Full detail stays in the logs; callers get an opaque failure.
		logger.L().Error("client secret decryption failed",
			logger.Component("sso.resolver"),
			logger.TenantID(cfg.TenantID),
			logger.Provider(cfg.Provider),
			logger.Err(err),
		)
		return "", ErrSecretUnavailable
	}
	return plain, nil
}

// ActiveProviderIDs lists the provider ids usable for a tenant: the union of
// its active rows and the providers with system-level default credentials.
// Lower-cased, de-duplicated, sorted for stable output.
func (r *ConfigResolver) ActiveProviderIDs(ctx context.Context, tenantID string) ([]string, error) {
	cacheKey := "sso:providers:" + tenantID
	if r.providerList != nil {
		if raw, err := r.providerList.Get(ctx, cacheKey); err == nil {
			var ids []string
			if json.Unmarshal([]byte(raw), &ids) == nil {
				return ids, nil
			}
		}
	}

	rows, err := r.configs.ListActive(ctx, tenantID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, fmt.Errorf("sso: list configs: %w", err)
	}

	set := make(map[string]struct{})
	for i := range rows {
		if rows[i].Active() {
			set[strings.ToLower(rows[i].Provider)] = struct{}{}
		}
	}
	for _, d := range r.defaults {
		if d.ClientID != "" && d.ClientSecret != "" {
			set[strings.ToLower(d.Provider)] = struct{}{}
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if r.providerList != nil && r.listTTL > 0 {
		if raw, err := json.Marshal(ids); err == nil {
			_ = r.providerList.Set(ctx, cacheKey, string(raw), r.listTTL)
		}
	}
	return ids, nil
}

// DefaultProviderIDs lists the providers usable before any tenant exists
// (onboarding sign-up): only those with default credentials.
func (r *ConfigResolver) DefaultProviderIDs() []string {
	set := make(map[string]struct{})
	for _, d := range r.defaults {
		if d.ClientID != "" && d.ClientSecret != "" {
			set[strings.ToLower(d.Provider)] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

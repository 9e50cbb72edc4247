package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/idframe/idframe/internal/cache"
	"github.com/idframe/idframe/internal/config"
	"github.com/idframe/idframe/internal/email"
	"github.com/idframe/idframe/internal/httpsrv"
	"github.com/idframe/idframe/internal/metrics"
	"github.com/idframe/idframe/internal/observability/logger"
	"github.com/idframe/idframe/internal/registration"
	"github.com/idframe/idframe/internal/security/secretbox"
	"github.com/idframe/idframe/internal/sso"
	"github.com/idframe/idframe/internal/store"
	"github.com/idframe/idframe/internal/trust"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "idframe",
		Short: "Multi-tenant identity federation core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("IDFRAME_CONFIG"), "path to YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the federation HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	providers := &cobra.Command{
		Use:   "providers",
		Short: "Print the provider ids usable before any tenant exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProviders(configPath)
		},
	}

	root.AddCommand(serve, providers)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "idframe",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := store.Open(ctx, store.Config{
		Driver:        cfg.Storage.Driver,
		MongoURI:      cfg.Storage.Mongo.URI,
		MongoDatabase: cfg.Storage.Mongo.Database,
		PostgresDSN:   cfg.Storage.Postgres.DSN,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = stores.Close() }()

	cacheClient, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Driver,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = cacheClient.Close() }()

	cipher, err := secretbox.New(cfg.Secrets.MasterKey)
	if err != nil {
		return fmt.Errorf("secretbox: %w", err)
	}

	m := metrics.New()

	resolver := sso.NewConfigResolver(
		stores.SSOConfigs, cipher, ssoDefaults(cfg),
		cacheClient, cfg.Cache.ProviderListTTL,
	)
	catalog := buildCatalog(cfg)
	registry := sso.NewRegistry(
		sso.NewGoogleStrategy(resolver, catalog),
		sso.NewMicrosoftStrategy(resolver, catalog),
		sso.NewGenericOIDCStrategy(resolver, catalog),
	)
	builder := sso.NewBuilder(registry)

	allowlist := trust.NewAllowlistResolver(
		stores.Tenants,
		cfg.Trust.AllowedIssuerBase,
		cfg.Trust.SuperTenantID,
		cfg.Trust.DiscoveryTimeout,
		m,
	)
	loader, err := trust.NewLoader(trust.LoaderConfig{
		LocalIssuer:       cfg.Trust.LocalIssuer,
		LocalPublicKeyPEM: cfg.Trust.LocalPublicKeyPEM,
		Allowlist:         allowlist,
		DiscoveryTimeout:  cfg.Trust.DiscoveryTimeout,
	})
	if err != nil {
		return fmt.Errorf("trust loader: %w", err)
	}
	trustCache, err := trust.NewCache(loader, trust.CacheConfig{
		MaxEntries:   cfg.Trust.Cache.MaxEntries,
		ExpireAfter:  cfg.Trust.Cache.ExpireAfter,
		RefreshAfter: cfg.Trust.Cache.RefreshAfter,
	}, m)
	if err != nil {
		return fmt.Errorf("trust cache: %w", err)
	}

	var sender email.Sender = email.NoopSender{}
	if cfg.SMTP.Host != "" {
		sender = email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	}

	validation := registration.NewValidationService(stores.Tenants, resolver)
	invValidator := registration.NewInvitationValidator(stores.Invitations, nil)
	invitations := registration.NewInvitationService(registration.InvitationServiceDeps{
		Invitations:   stores.Invitations,
		Validator:     invValidator,
		Resolver:      resolver,
		Mail:          sender,
		TTL:           cfg.Invitations.TTL,
		AcceptURLBase: cfg.Invitations.AcceptURLBase,
	})
	onboarding := registration.NewOnboardingService(validation, cipher, nil)

	srv := httpsrv.New(httpsrv.Deps{
		TrustCache:  trustCache,
		Allowlist:   allowlist,
		Builder:     builder,
		Resolver:    resolver,
		Invitations: invitations,
		Validation:  validation,
		Onboarding:  onboarding,
		Metrics:     m,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runProviders(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ids := make([]string, 0, len(cfg.SSO.Defaults))
	for provider, creds := range cfg.SSO.Defaults {
		if creds.ClientID != "" && creds.ClientSecret != "" {
			ids = append(ids, provider)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

// ssoDefaults flattens the config map into resolver credentials.
func ssoDefaults(cfg *config.Config) []sso.DefaultCredentials {
	out := make([]sso.DefaultCredentials, 0, len(cfg.SSO.Defaults))
	for provider, creds := range cfg.SSO.Defaults {
		out = append(out, sso.DefaultCredentials{
			Provider:     provider,
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
		})
	}
	return out
}

// buildCatalog starts from the built-in templates and lets the config
// override or add provider entries.
func buildCatalog(cfg *config.Config) *sso.Catalog {
	base := sso.DefaultCatalog()
	if len(cfg.SSO.Providers) == 0 {
		return base
	}

	templates := make([]*sso.Template, 0, len(cfg.SSO.Providers)+3)
	for _, id := range []string{sso.ProviderGoogle, sso.ProviderMicrosoft, sso.ProviderOIDC} {
		if t := base.Template(id); t != nil {
			templates = append(templates, t)
		}
	}
	for provider, tc := range cfg.SSO.Providers {
		t := base.Template(provider)
		if t == nil {
			t = &sso.Template{Provider: provider}
			templates = append(templates, t)
		}
		if tc.AuthorizationURL != "" {
			t.AuthorizationURL = tc.AuthorizationURL
		}
		if tc.TokenURL != "" {
			t.TokenURL = tc.TokenURL
		}
		if tc.UserInfoURL != "" {
			t.UserInfoURL = tc.UserInfoURL
		}
		if tc.JWKSetURL != "" {
			t.JWKSetURL = tc.JWKSetURL
		}
		if len(tc.Scopes) > 0 {
			t.Scopes = tc.Scopes
		}
		if tc.LoginRedirectURI != "" {
			t.LoginRedirectURI = tc.LoginRedirectURI
		}
		if tc.RegistrationRedirectURI != "" {
			t.RegistrationRedirectURI = tc.RegistrationRedirectURI
		}
	}
	return sso.NewCatalog(templates...)
}

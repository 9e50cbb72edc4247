package httpsrv

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/idframe/idframe/internal/domain/repository"
	"github.com/idframe/idframe/internal/metrics"
	"github.com/idframe/idframe/internal/registration"
	"github.com/idframe/idframe/internal/security/secretbox"
	"github.com/idframe/idframe/internal/sso"
	"github.com/idframe/idframe/internal/store/memory"
	"github.com/idframe/idframe/internal/trust"
)

const testIssuerBase = "https://idp.example.com"

// testEnv stands the whole stack up over the memory store, including the
// trust cache keyed to a throwaway local signing key.
type testEnv struct {
	srv    *Server
	st     *memory.Store
	signer ed25519.PrivateKey
	issuer string
}

func testServer(t *testing.T) *testEnv {
	t.Helper()

	st := memory.New()
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	cipher, err := secretbox.New(key)
	require.NoError(t, err)

	defaults := []sso.DefaultCredentials{
		{Provider: "google", ClientID: "default-id", ClientSecret: "default-secret"},
	}
	resolver := sso.NewConfigResolver(st.SSOConfigs(), cipher, defaults, nil, 0)
	catalog := sso.DefaultCatalog()
	registry := sso.NewRegistry(
		sso.NewGoogleStrategy(resolver, catalog),
		sso.NewMicrosoftStrategy(resolver, catalog),
		sso.NewGenericOIDCStrategy(resolver, catalog),
	)

	validation := registration.NewValidationService(st.Tenants(), resolver)
	validator := registration.NewInvitationValidator(st.Invitations(), nil)
	invitations := registration.NewInvitationService(registration.InvitationServiceDeps{
		Invitations:   st.Invitations(),
		Validator:     validator,
		Resolver:      resolver,
		TTL:           time.Hour,
		AcceptURLBase: "https://app.example.com/invitations",
	})
	onboarding := registration.NewOnboardingService(validation, cipher, nil)

	localIssuer := testIssuerBase + "/self"
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	allowlist := trust.NewAllowlistResolver(st.Tenants(), testIssuerBase, "root", time.Second, nil)
	loader, err := trust.NewLoader(trust.LoaderConfig{
		LocalIssuer:       localIssuer,
		LocalPublicKeyPEM: pubPEM,
		Allowlist:         allowlist,
	})
	require.NoError(t, err)
	trustCache, err := trust.NewCache(loader, trust.CacheConfig{
		MaxEntries:   8,
		ExpireAfter:  time.Hour,
		RefreshAfter: time.Minute,
	}, nil)
	require.NoError(t, err)

	srv := New(Deps{
		TrustCache:  trustCache,
		Allowlist:   allowlist,
		Builder:     sso.NewBuilder(registry),
		Resolver:    resolver,
		Invitations: invitations,
		Validation:  validation,
		Onboarding:  onboarding,
		Metrics:     metrics.New(),
	})
	return &testEnv{srv: srv, st: st, signer: priv, issuer: localIssuer}
}

func (e *testEnv) signToken(t *testing.T, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	raw, err := tok.SignedString(e.signer)
	require.NoError(t, err)
	return raw
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	env := testServer(t)
	rec := doJSON(t, env.srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDomainCheck(t *testing.T) {
	env := testServer(t)
	env.st.PutTenant(&repository.Tenant{ID: "t1", Domain: "acme.example.com"})

	rec := doJSON(t, env.srv, http.MethodGet, "/v1/tenants/domain-check?domain=free.example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Case-insensitive conflict with a stable machine code.
	rec = doJSON(t, env.srv, http.MethodGet, "/v1/tenants/domain-check?domain=ACME.example.com", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]string](t, rec)
	require.Equal(t, "domain_already_exists", body["code"])

	rec = doJSON(t, env.srv, http.MethodGet, "/v1/tenants/domain-check", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateTokenEndpoint(t *testing.T) {
	env := testServer(t)

	raw := env.signToken(t, jwtv5.MapClaims{
		"iss":   env.issuer,
		"sub":   "user-1",
		"email": "user@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	rec := doJSON(t, env.srv, http.MethodPost, "/v1/tokens/validate",
		fmt.Sprintf(`{"token":%q}`, raw))
	require.Equal(t, http.StatusOK, rec.Code)
	principal := decode[map[string]any](t, rec)
	require.Equal(t, "user-1", principal["subject"])
	require.Equal(t, env.issuer, principal["issuer"])

	// Expired token from the same issuer.
	raw = env.signToken(t, jwtv5.MapClaims{
		"iss": env.issuer, "sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix(),
	})
	rec = doJSON(t, env.srv, http.MethodPost, "/v1/tokens/validate",
		fmt.Sprintf(`{"token":%q}`, raw))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[map[string]string](t, rec)
	require.Equal(t, "invalid_token", body["code"])

	// Not a JWT at all.
	rec = doJSON(t, env.srv, http.MethodPost, "/v1/tokens/validate", `{"token":"garbage"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, env.srv, http.MethodPost, "/v1/tokens/validate", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssuerAllowlistEndpoint(t *testing.T) {
	env := testServer(t)
	env.st.PutTenant(&repository.Tenant{ID: "t1", Domain: "acme.example.com"})

	rec := doJSON(t, env.srv, http.MethodGet, "/v1/trust/issuers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]string](t, rec)
	require.Equal(t, []string{testIssuerBase + "/t1", testIssuerBase + "/root"}, body["issuers"])
}

func TestBuildClientEndpoint(t *testing.T) {
	env := testServer(t)

	// Default Google credentials make the provider usable without a row.
	rec := doJSON(t, env.srv, http.MethodGet, "/v1/tenants/t1/sso/clients/google", "")
	require.Equal(t, http.StatusOK, rec.Code)
	desc := decode[map[string]any](t, rec)
	require.Equal(t, "default-id", desc["client_id"])
	require.NotContains(t, rec.Body.String(), "secret")

	// No config and no defaults: provider_not_configured, not a partial
	// descriptor.
	rec = doJSON(t, env.srv, http.MethodGet, "/v1/tenants/t1/sso/clients/microsoft", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[map[string]string](t, rec)
	require.Equal(t, "provider_not_configured", body["code"])

	// Unknown provider id is a different, 4xx signal.
	rec = doJSON(t, env.srv, http.MethodGet, "/v1/tenants/t1/sso/clients/fancy", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = decode[map[string]string](t, rec)
	require.Equal(t, "unsupported_provider", body["code"])
}

func TestInvitationLifecycleEndpoints(t *testing.T) {
	env := testServer(t)

	rec := doJSON(t, env.srv, http.MethodPost, "/v1/invitations", `{"tenant_id":"t1","email":"User@Example.com","roles":["admin"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]any](t, rec)
	id := created["id"].(string)
	require.Equal(t, "user@example.com", created["email"])
	require.Equal(t, "PENDING", created["status"])

	rec = doJSON(t, env.srv, http.MethodGet, "/v1/invitations/"+id+"/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	providers := decode[map[string][]string](t, rec)
	require.Equal(t, []string{"google"}, providers["providers"])

	rec = doJSON(t, env.srv, http.MethodPost, "/v1/invitations/"+id+"/accept", "")
	require.Equal(t, http.StatusOK, rec.Code)
	accepted := decode[map[string]any](t, rec)
	require.Equal(t, "ACCEPTED", accepted["status"])

	// Second accept: conflict with its own code.
	rec = doJSON(t, env.srv, http.MethodPost, "/v1/invitations/"+id+"/accept", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]string](t, rec)
	require.Equal(t, "invitation_not_acceptable", body["code"])

	rec = doJSON(t, env.srv, http.MethodPost, "/v1/invitations/missing/accept", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body = decode[map[string]string](t, rec)
	require.Equal(t, "invitation_not_found", body["code"])
}

func TestExpiredInvitationCode(t *testing.T) {
	env := testServer(t)

	require.NoError(t, env.st.Invitations().Create(context.Background(), &repository.Invitation{
		ID: "old", TenantID: "t1", Email: "a@example.com",
		Status:    repository.InvitationPending,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	rec := doJSON(t, env.srv, http.MethodPost, "/v1/invitations/old/accept", "")
	require.Equal(t, http.StatusGone, rec.Code)
	body := decode[map[string]string](t, rec)
	require.Equal(t, "invitation_expired", body["code"])
}

func TestMetricsPathLabels(t *testing.T) {
	env := testServer(t)

	// Two requests with different path parameters must land in one series.
	doJSON(t, env.srv, http.MethodPost, "/v1/invitations/11111111-aaaa-bbbb-cccc-000000000001/accept", "")
	doJSON(t, env.srv, http.MethodPost, "/v1/invitations/11111111-aaaa-bbbb-cccc-000000000002/accept", "")

	rec := doJSON(t, env.srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `path="/v1/invitations/{id}/accept"`)
	require.NotContains(t, body, "11111111-aaaa-bbbb-cccc")
}

func TestStartOnboardingEndpoint(t *testing.T) {
	env := testServer(t)

	rec := doJSON(t, env.srv, http.MethodPost, "/v1/onboarding/sso",
		`{"provider":"google","domain":"new.example.com","tenant_name":"New Co","email":"owner@new.example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]string](t, rec)
	require.NotEmpty(t, body["state"])
	require.Contains(t, body["redirect_path"], "/oauth2/authorization/google")

	var flowCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == flowCookieName {
			flowCookie = c
		}
	}
	require.NotNil(t, flowCookie)
	require.True(t, flowCookie.HttpOnly)
	require.NotEmpty(t, flowCookie.Value)

	// Unconfigured provider is rejected before any state is minted.
	rec = doJSON(t, env.srv, http.MethodPost, "/v1/onboarding/sso",
		`{"provider":"microsoft","domain":"other.example.com"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

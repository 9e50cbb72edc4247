package trust

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/idframe/idframe/internal/domain/repository"
)

func genLocalKey(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	return priv, pemStr
}

func signToken(t *testing.T, priv ed25519.PrivateKey, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	raw, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return raw
}

func TestLocalValidator(t *testing.T) {
	const issuer = "https://self.example.com"
	priv, pubPEM := genLocalKey(t)

	loader, err := NewLoader(LoaderConfig{LocalIssuer: issuer, LocalPublicKeyPEM: pubPEM})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	v, err := loader(context.Background(), issuer)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	if v.Issuer() != issuer {
		t.Fatalf("unexpected issuer: %s", v.Issuer())
	}

	raw := signToken(t, priv, jwtv5.MapClaims{
		"iss":   issuer,
		"sub":   "user-1",
		"email": "user@example.com",
		"roles": []string{"admin"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	p, err := v.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.Subject != "user-1" || p.Email != "user@example.com" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if len(p.Roles) != 1 || p.Roles[0] != "admin" {
		t.Fatalf("unexpected roles: %v", p.Roles)
	}
}

func TestLocalValidator_Rejections(t *testing.T) {
	const issuer = "https://self.example.com"
	priv, pubPEM := genLocalKey(t)

	loader, err := NewLoader(LoaderConfig{LocalIssuer: issuer, LocalPublicKeyPEM: pubPEM})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	v, err := loader(context.Background(), issuer)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}

	cases := map[string]jwtv5.MapClaims{
		"expired": {
			"iss": issuer, "sub": "u", "exp": time.Now().Add(-time.Hour).Unix(),
		},
		"wrong issuer": {
			"iss": "https://evil.example.com", "sub": "u", "exp": time.Now().Add(time.Hour).Unix(),
		},
		"missing exp": {
			"iss": issuer, "sub": "u",
		},
	}
	for name, claims := range cases {
		raw := signToken(t, priv, claims)
		if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", name, err)
		}
	}

	// Token signed with a different key.
	otherPriv, _ := genLocalKey(t)
	raw := signToken(t, otherPriv, jwtv5.MapClaims{
		"iss": issuer, "sub": "u", "exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}

func TestNewLoader_BadKeyMaterial(t *testing.T) {
	_, err := NewLoader(LoaderConfig{LocalIssuer: "x", LocalPublicKeyPEM: "not a pem"})
	if !errors.Is(err, errBadLocalKey) {
		t.Fatalf("expected errBadLocalKey, got %v", err)
	}

	loader, err := NewLoader(LoaderConfig{LocalIssuer: "https://self.example.com"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	// Local issuer without key material cannot produce a validator.
	if _, err := loader(context.Background(), "https://self.example.com"); err == nil {
		t.Fatal("expected missing key error")
	}
}

// fakeIdentityProvider serves just enough OIDC surface for discovery: the
// well-known document under a tenant-shaped path plus an RSA JWKS.
type fakeIdentityProvider struct {
	srv    *httptest.Server
	issuer string
	key    *rsa.PrivateKey
}

func newFakeIdentityProvider(t *testing.T, tenantID string) *fakeIdentityProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	p := &fakeIdentityProvider{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/idp/"+tenantID+"/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                p.issuer,
			"authorization_endpoint":                p.issuer + "/authorize",
			"token_endpoint":                        p.issuer + "/token",
			"jwks_uri":                              p.srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		pub := &key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "k1",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	p.issuer = p.srv.URL + "/idp/" + tenantID
	return p
}

func (p *fakeIdentityProvider) sign(t *testing.T, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	raw, err := tok.SignedString(p.key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return raw
}

// resolvedAllowlist builds an AllowlistResolver whose cached list is already
// populated from the given representative tenant id.
func resolvedAllowlist(t *testing.T, issuerBase, tenantID string) *AllowlistResolver {
	t.Helper()
	tenants := &gateTenants{tenant: repository.Tenant{ID: tenantID}}
	r := NewAllowlistResolver(tenants, issuerBase, "", 0, nil)
	if _, err := r.ResolveIssuerURLs(context.Background()); err != nil {
		t.Fatalf("ResolveIssuerURLs: %v", err)
	}
	return r
}

func TestCheckIssuerAllowed(t *testing.T) {
	const issuer = "https://issuers.example.com/t1"

	// No resolver wired at all.
	if err := checkIssuerAllowed(nil, issuer); err != nil {
		t.Fatalf("nil allowlist: %v", err)
	}

	// Unresolved allowlist passes; nothing legitimate can be named yet.
	tenants := &gateTenants{tenant: repository.Tenant{ID: "t1"}}
	tenants.fail.Store(true)
	cold := NewAllowlistResolver(tenants, "https://issuers.example.com", "", 0, nil)
	if err := checkIssuerAllowed(cold, issuer); err != nil {
		t.Fatalf("empty allowlist: %v", err)
	}

	// Resolved: members pass, everything else is rejected.
	allow := resolvedAllowlist(t, "https://issuers.example.com", "t1")
	if err := checkIssuerAllowed(allow, issuer); err != nil {
		t.Fatalf("member issuer: %v", err)
	}
	err := checkIssuerAllowed(allow, "https://issuers.example.com/intruder")
	if !errors.Is(err, ErrIssuerNotAllowed) {
		t.Fatalf("expected ErrIssuerNotAllowed, got %v", err)
	}
}

func TestDiscoveredValidator(t *testing.T) {
	idp := newFakeIdentityProvider(t, "tenant-1")
	allow := resolvedAllowlist(t, idp.srv.URL+"/idp", "tenant-1")

	loader, err := NewLoader(LoaderConfig{
		LocalIssuer:      "https://self.example.com",
		Allowlist:        allow,
		DiscoveryTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	v, err := loader(context.Background(), idp.issuer)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	if v.Issuer() != idp.issuer {
		t.Fatalf("unexpected issuer: %s", v.Issuer())
	}

	raw := idp.sign(t, jwtv5.MapClaims{
		"iss":   idp.issuer,
		"sub":   "foreign-user",
		"email": "f@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	p, err := v.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.Subject != "foreign-user" || p.Issuer != idp.issuer {
		t.Fatalf("unexpected principal: %+v", p)
	}

	raw = idp.sign(t, jwtv5.MapClaims{
		"iss": idp.issuer, "sub": "u", "exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestDiscoveredValidator_IssuerNotAllowed(t *testing.T) {
	idp := newFakeIdentityProvider(t, "tenant-1")
	// The allowlist names a different tenant's issuer.
	allow := resolvedAllowlist(t, idp.srv.URL+"/idp", "someone-else")

	loader, err := NewLoader(LoaderConfig{
		LocalIssuer:      "https://self.example.com",
		Allowlist:        allow,
		DiscoveryTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	v, err := loader(context.Background(), idp.issuer)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}

	raw := idp.sign(t, jwtv5.MapClaims{
		"iss": idp.issuer, "sub": "u", "exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := v.Validate(context.Background(), raw); !errors.Is(err, ErrIssuerNotAllowed) {
		t.Fatalf("expected ErrIssuerNotAllowed, got %v", err)
	}
}

func TestExtractIssuer(t *testing.T) {
	priv, _ := genLocalKey(t)
	raw := signToken(t, priv, jwtv5.MapClaims{
		"iss": "https://a.example.com", "exp": time.Now().Add(time.Hour).Unix(),
	})
	iss, err := ExtractIssuer(raw)
	if err != nil {
		t.Fatalf("ExtractIssuer: %v", err)
	}
	if iss != "https://a.example.com" {
		t.Fatalf("unexpected issuer: %s", iss)
	}

	raw = signToken(t, priv, jwtv5.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if _, err := ExtractIssuer(raw); !errors.Is(err, ErrIssuerMissing) {
		t.Fatalf("expected ErrIssuerMissing, got %v", err)
	}

	if _, err := ExtractIssuer("garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

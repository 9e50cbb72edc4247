package trust

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// LoaderConfig wires the validator loader.
type LoaderConfig struct {
	// LocalIssuer is the issuer this process signs tokens under. Tokens
	// from it are validated against LocalPublicKey instead of discovery.
	LocalIssuer string

	// LocalPublicKeyPEM is the Ed25519 public key in PKIX PEM form.
	LocalPublicKeyPEM string

	// Allowlist supplies the strict-issuer check for foreign issuers.
	Allowlist *AllowlistResolver

	// DiscoveryTimeout bounds each OIDC discovery call. A timed-out
	// discovery behaves exactly like a failed one.
	DiscoveryTimeout time.Duration
}

var errBadLocalKey = errors.New("trust: local public key is not a valid Ed25519 PKIX PEM")

// NewLoader returns the LoaderFunc for the issuer cache: local issuers get
// a key-material validator, foreign issuers get discovery plus the strict
// allowlist check.
func NewLoader(cfg LoaderConfig) (LoaderFunc, error) {
	var localKey ed25519.PublicKey
	if cfg.LocalPublicKeyPEM != "" {
		k, err := parseEd25519PublicKey(cfg.LocalPublicKeyPEM)
		if err != nil {
			return nil, err
		}
		localKey = k
	}

	timeout := cfg.DiscoveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, issuer string) (*Validator, error) {
		if issuer == cfg.LocalIssuer {
			if localKey == nil {
				return nil, fmt.Errorf("trust: local issuer %q has no key material", issuer)
			}
			return newLocalValidator(issuer, localKey), nil
		}
		return newDiscoveredValidator(ctx, issuer, timeout, cfg.Allowlist)
	}, nil
}

// newLocalValidator validates tokens signed by this process: default
// structural checks plus an exact-issuer rule.
func newLocalValidator(issuer string, key ed25519.PublicKey) *Validator {
	parser := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(issuer),
		jwtv5.WithExpirationRequired(),
	)
	return NewValidator(issuer, func(ctx context.Context, rawToken string) (*Principal, error) {
		tok, err := parser.Parse(rawToken, func(*jwtv5.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		claims, ok := tok.Claims.(jwtv5.MapClaims)
		if !ok {
			return nil, ErrTokenInvalid
		}
		return principalFromClaims(issuer, claims), nil
	})
}

// newDiscoveredValidator performs OIDC discovery for a foreign issuer and
// wraps its default validation with the strict allowlist membership check.
//
// When the allowlist is empty or unresolved the check passes (fail-open).
// That posture is deliberate and documented: at that point the deployment
// has no tenant record yet, and rejecting would block every foreign issuer.
func newDiscoveredValidator(ctx context.Context, issuer string, timeout time.Duration, allowlist *AllowlistResolver) (*Validator, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provider, err := oidc.NewProvider(dctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("trust: discovery for %q: %w", issuer, err)
	}

	// Bearer tokens are not bound to a single relying party here, so the
	// audience check is left to the policy layer.
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})

	return NewValidator(issuer, func(ctx context.Context, rawToken string) (*Principal, error) {
		idToken, err := verifier.Verify(ctx, rawToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}

		if err := checkIssuerAllowed(allowlist, idToken.Issuer); err != nil {
			return nil, err
		}

		var claims map[string]any
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		return principalFromClaims(idToken.Issuer, claims), nil
	}), nil
}

// checkIssuerAllowed enforces allowlist membership for a foreign issuer.
// An unresolved or empty allowlist passes: at that point the deployment has
// no tenant record yet, and rejecting would block every foreign issuer.
func checkIssuerAllowed(allowlist *AllowlistResolver, issuer string) error {
	if allowlist == nil {
		return nil
	}
	expected := allowlist.CachedIssuerURLs()
	if len(expected) > 0 && !contains(expected, issuer) {
		return fmt.Errorf("%w: %s", ErrIssuerNotAllowed, issuer)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func parseEd25519PublicKey(pemStr string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errBadLocalKey
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadLocalKey, err)
	}
	key, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, errBadLocalKey
	}
	return key, nil
}

// Package trust resolves which tenant-scoped trust root issued an inbound
// bearer token and validates it. The set of valid issuers is learned at
// runtime: tenants and their identity providers appear after deploy, so
// validators are built on demand, cached with refresh-ahead, and guarded by
// a strict allowlist for foreign issuers.
package trust

import (
	"context"
	"errors"
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid covers structural/signature/expiry failures.
	ErrTokenInvalid = errors.New("trust: token invalid")

	// ErrIssuerNotAllowed means the token's issuer is not in the resolved
	// allowlist.
	ErrIssuerNotAllowed = errors.New("trust: unexpected issuer")

	// ErrIssuerMissing means the token carries no iss claim, so no trust
	// root can be selected for it.
	ErrIssuerMissing = errors.New("trust: token has no issuer")
)

// Principal is the validated identity extracted from a token.
type Principal struct {
	Subject string
	Issuer  string
	Email   string
	Roles   []string
	Claims  map[string]any
}

// VerifyFunc checks a raw token and returns the validated principal.
type VerifyFunc func(ctx context.Context, rawToken string) (*Principal, error)

// Validator is a ready token-validation unit for one issuer.
type Validator struct {
	issuer string
	verify VerifyFunc
}

// NewValidator wraps a verify function for an issuer.
func NewValidator(issuer string, verify VerifyFunc) *Validator {
	return &Validator{issuer: issuer, verify: verify}
}

// Issuer returns the issuer this validator was built for.
func (v *Validator) Issuer() string { return v.issuer }

// Validate checks the raw token.
func (v *Validator) Validate(ctx context.Context, rawToken string) (*Principal, error) {
	return v.verify(ctx, rawToken)
}

// ExtractIssuer pulls the iss claim from a token without verifying it.
// Used to pick the trust root before any validation happens; nothing about
// the token is trusted at this point.
func ExtractIssuer(rawToken string) (string, error) {
	var claims jwtv5.RegisteredClaims
	parser := jwtv5.NewParser()
	if _, _, err := parser.ParseUnverified(rawToken, &claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Issuer == "" {
		return "", ErrIssuerMissing
	}
	return claims.Issuer, nil
}

// principalFromClaims maps generic claims into a Principal.
func principalFromClaims(issuer string, claims map[string]any) *Principal {
	p := &Principal{Issuer: issuer, Claims: claims}
	if sub, ok := claims["sub"].(string); ok {
		p.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		p.Email = email
	}
	switch roles := claims["roles"].(type) {
	case []string:
		p.Roles = roles
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				p.Roles = append(p.Roles, s)
			}
		}
	}
	return p
}

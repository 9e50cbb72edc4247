// Package sso assembles ready-to-use OAuth2 client descriptors for a
// (tenant, provider) pair. Static URL templates come from the catalog,
// per-tenant credentials from the config resolver, and per-provider quirks
// from registration strategies.
package sso

import "strings"

// SubTenantPlaceholder marks the spot in a URL template where a
// provider-specific sub-tenant id is substituted. Only Microsoft templates
// use it: a tenant may pin its directory id to get an organization-specific
// authorization endpoint.
const SubTenantPlaceholder = "{subTenantId}"

// Built-in provider ids.
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
	ProviderOIDC      = "oidc"
)

// Template is the static, per-provider-type configuration. Loaded at
// startup, immutable afterwards; never mutated per request.
type Template struct {
	Provider                string
	AuthorizationURL        string
	TokenURL                string
	UserInfoURL             string
	JWKSetURL               string
	Scopes                  []string
	LoginRedirectURI        string
	RegistrationRedirectURI string

	// Common endpoints are the multi-tenant fallbacks used when a template
	// carries the sub-tenant placeholder but the tenant configured no
	// sub-tenant id.
	CommonAuthorizationURL string
	CommonTokenURL         string
	CommonJWKSetURL        string
}

// ResolveAuthorizationURL applies the sub-tenant substitution rule.
func (t *Template) ResolveAuthorizationURL(subTenantID string) string {
	return resolveEndpoint(t.AuthorizationURL, t.CommonAuthorizationURL, subTenantID)
}

// ResolveTokenURL applies the sub-tenant substitution rule.
func (t *Template) ResolveTokenURL(subTenantID string) string {
	return resolveEndpoint(t.TokenURL, t.CommonTokenURL, subTenantID)
}

// ResolveJWKSetURL applies the sub-tenant substitution rule.
func (t *Template) ResolveJWKSetURL(subTenantID string) string {
	return resolveEndpoint(t.JWKSetURL, t.CommonJWKSetURL, subTenantID)
}

// resolveEndpoint substitutes the placeholder when a sub-tenant id is
// configured. A placeholder-bearing template without a sub-tenant id falls
// back to the common endpoint; templates without the placeholder are used
// verbatim.
func resolveEndpoint(templateURL, commonURL, subTenantID string) string {
	if !strings.Contains(templateURL, SubTenantPlaceholder) {
		return templateURL
	}
	if subTenantID == "" {
		return commonURL
	}
	return strings.ReplaceAll(templateURL, SubTenantPlaceholder, subTenantID)
}

// Catalog holds one Template per supported provider type.
type Catalog struct {
	templates map[string]*Template
}

// NewCatalog builds a catalog from the given templates. Provider ids are
// normalized to lower case.
func NewCatalog(templates ...*Template) *Catalog {
	m := make(map[string]*Template, len(templates))
	for _, t := range templates {
		m[strings.ToLower(t.Provider)] = t
	}
	return &Catalog{templates: m}
}

// Template returns the template for a provider id, or nil.
func (c *Catalog) Template(provider string) *Template {
	return c.templates[strings.ToLower(provider)]
}

// DefaultCatalog returns the built-in provider templates.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		&Template{
			Provider:         ProviderGoogle,
			AuthorizationURL: "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:         "https://oauth2.googleapis.com/token",
			UserInfoURL:      "https://openidconnect.googleapis.com/v1/userinfo",
			JWKSetURL:        "https://www.googleapis.com/oauth2/v3/certs",
			Scopes:           []string{"openid", "profile", "email"},
		},
		&Template{
			Provider:               ProviderMicrosoft,
			AuthorizationURL:       "https://login.microsoftonline.com/{subTenantId}/oauth2/v2.0/authorize",
			TokenURL:               "https://login.microsoftonline.com/{subTenantId}/oauth2/v2.0/token",
			UserInfoURL:            "https://graph.microsoft.com/oidc/userinfo",
			JWKSetURL:              "https://login.microsoftonline.com/{subTenantId}/discovery/v2.0/keys",
			Scopes:                 []string{"openid", "profile", "email"},
			CommonAuthorizationURL: "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			CommonTokenURL:         "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			CommonJWKSetURL:        "https://login.microsoftonline.com/common/discovery/v2.0/keys",
		},
		&Template{
			Provider: ProviderOIDC,
			Scopes:   []string{"openid", "profile", "email"},
		},
	)
}

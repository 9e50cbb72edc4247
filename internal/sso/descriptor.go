package sso

import (
	"unicode"

	"golang.org/x/oauth2"
)

// ClientDescriptor is a ready-to-use OAuth2 client for one (tenant,
// provider) pair. Built fresh on every federation-initiation request and
// never cached: a stale secret must never be served.
type ClientDescriptor struct {
	Provider     string
	TenantID     string
	ClientID     string
	ClientSecret string

	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	JWKSetURL        string
	RedirectURI      string
	Scopes           []string

	// DisplayName is "{Capitalized provider} ({tenantId})".
	DisplayName string
}

// OAuth2 returns the oauth2 client config used to produce the authorization
// redirect and exchange the code.
func (d *ClientDescriptor) OAuth2() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     d.ClientID,
		ClientSecret: d.ClientSecret,
		RedirectURL:  d.RedirectURI,
		Scopes:       append([]string(nil), d.Scopes...),
		Endpoint: oauth2.Endpoint{
			AuthURL:  d.AuthorizationURL,
			TokenURL: d.TokenURL,
		},
	}
}

// capitalize upper-cases only the first character. Blank input passes
// through unchanged.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// displayName formats the human-readable client name.
func displayName(provider, tenantID string) string {
	return capitalize(provider) + " (" + tenantID + ")"
}

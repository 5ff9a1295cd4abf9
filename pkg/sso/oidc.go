package sso

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Options configures the OIDC relying party. Values come from the
// BIBLIO_OIDC_* environment.
type Options struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Validate checks that every field a login flow needs is set.
func (o Options) Validate() error {
	if o.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	if o.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if o.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if o.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if len(o.Scopes) == 0 {
		return fmt.Errorf("scopes are required")
	}
	for _, scope := range o.Scopes {
		if scope == oidc.ScopeOpenID {
			return nil
		}
	}
	return fmt.Errorf("%q scope is required", oidc.ScopeOpenID)
}

// Claims is the subset of ID token claims the login flow consumes.
type Claims struct {
	Subject  string
	Email    string
	Username string
	Name     string
}

// Provider is the OIDC relying party: it builds authorization URLs
// and turns callback codes into verified claims.
type Provider struct {
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
}

// NewProvider discovers the issuer's endpoints and prepares the
// verifier. It makes a network call to the issuer's discovery
// document.
func NewProvider(ctx context.Context, opts Options) (*Provider, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid OIDC options: %w", err)
	}

	provider, err := oidc.NewProvider(ctx, opts.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &Provider{
		verifier: provider.Verifier(&oidc.Config{ClientID: opts.ClientID}),
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  opts.RedirectURL,
			Scopes:       opts.Scopes,
		},
	}, nil
}

// AuthCodeURL returns the issuer's authorization URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange redeems the callback code, verifies the ID token, and maps
// its claims.
func (p *Provider) Exchange(ctx context.Context, code string) (*Claims, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("token response carries no id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var raw struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		Name              string `json:"name"`
	}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	return mapClaims(idToken.Subject, raw.Email, raw.PreferredUsername, raw.Name)
}

// mapClaims normalizes the ID token fields. The username falls back
// to the email; subject and email are required.
func mapClaims(subject, email, preferredUsername, name string) (*Claims, error) {
	if subject == "" {
		return nil, fmt.Errorf("ID token carries no subject")
	}
	if email == "" {
		return nil, fmt.Errorf("ID token carries no email")
	}

	username := preferredUsername
	if username == "" {
		username = email
	}

	return &Claims{
		Subject:  subject,
		Email:    email,
		Username: username,
		Name:     name,
	}, nil
}

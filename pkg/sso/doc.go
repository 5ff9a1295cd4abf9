// Package sso implements login through an OpenID Connect provider.
//
// # Overview
//
// The flow is the standard authorization code dance: /auth/sso/login
// parks a random state value in a cookie and redirects to the issuer;
// /auth/sso/callback checks the state, redeems the code, verifies the
// ID token against the issuer's keys, and answers with the same
// token-plus-user envelope as a password login. Accounts are matched
// by email and created on first login with the member role.
//
// The whole package is inert unless BIBLIO_OIDC_ENABLED is set; the
// server only mounts the routes when a provider is configured.
//
// # Usage Example
//
//	provider, err := sso.NewProvider(ctx, sso.Options{
//		Issuer:       cfg.SSO.OIDCIssuer,
//		ClientID:     cfg.SSO.OIDCClientID,
//		ClientSecret: cfg.SSO.OIDCClientSecret,
//		RedirectURL:  cfg.SSO.OIDCRedirectURL,
//		Scopes:       cfg.SSO.OIDCScopes,
//	})
//	if err != nil {
//		return err
//	}
//	sso.NewHandlers(provider, store, tokenManager, logger).RegisterRoutes(router)
//
// # Related Packages
//
//   - pkg/auth: issues the API token the callback hands back
//   - pkg/config: BIBLIO_OIDC_* settings
package sso

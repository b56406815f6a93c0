package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDC errors
var (
	ErrCodeExchangeFailed = errors.New("authorization code exchange failed")
)

// Claims holds the identity claims extracted from a verified ID token.
type Claims struct {
	Sub           string
	Email         string
	Name          string
	EmailVerified bool
}

// OIDCClient abstracts an external OIDC identity provider.
type OIDCClient interface {
	// AuthURL returns the provider authorization URL with the given state
	// parameter (a random string for CSRF protection).
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for verified ID token
	// claims.
	ExchangeCode(ctx context.Context, code string) (*Claims, error)
}

// GoogleIssuerURL is Google's OIDC issuer.
const GoogleIssuerURL = "https://accounts.google.com"

// OIDCRelyingParty implements OIDCClient against any spec-compliant issuer
// (Google in production, mockoidc in tests).
type OIDCRelyingParty struct {
	verifier    *oidc.IDTokenVerifier
	oauthConfig *oauth2.Config
}

// NewGoogleOIDCClient creates an OIDC client for Google sign-in.
func NewGoogleOIDCClient(clientID, clientSecret, redirectURL string) (*OIDCRelyingParty, error) {
	return NewOIDCClientForIssuer(context.Background(), GoogleIssuerURL, clientID, clientSecret, redirectURL)
}

// NewOIDCClientForIssuer creates an OIDC client against an arbitrary issuer
// using its well-known discovery endpoint.
func NewOIDCClientForIssuer(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*OIDCRelyingParty, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	oauthConfig := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	return &OIDCRelyingParty{
		verifier:    verifier,
		oauthConfig: oauthConfig,
	}, nil
}

// AuthURL returns the provider authorization URL with the provided state.
func (c *OIDCRelyingParty) AuthURL(state string) string {
	return c.oauthConfig.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for ID token claims.
// It performs the OAuth2 token exchange, verifies the ID token, and
// extracts the claims.
func (c *OIDCRelyingParty) ExchangeCode(ctx context.Context, code string) (*Claims, error) {
	oauth2Token, err := c.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeExchangeFailed, err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing id_token in token response", ErrCodeExchangeFailed)
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: id_token verification failed: %v", ErrCodeExchangeFailed, err)
	}

	var providerClaims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		PreferredName string `json:"preferred_username"`
	}
	if err := idToken.Claims(&providerClaims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrCodeExchangeFailed, err)
	}

	name := providerClaims.Name
	if name == "" {
		name = providerClaims.PreferredName
	}

	return &Claims{
		Sub:           providerClaims.Sub,
		Email:         providerClaims.Email,
		Name:          name,
		EmailVerified: providerClaims.EmailVerified,
	}, nil
}

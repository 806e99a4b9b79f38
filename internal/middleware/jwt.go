// Package middleware holds the HTTP middleware of the ingestion API.
package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the validated subset of a bearer token.
type Claims struct {
	Subject string
	Issuer  string
	Raw     map[string]any
}

// String returns the named claim when it is a non-empty string.
func (c *Claims) String(name string) string {
	if c == nil || c.Raw == nil {
		return ""
	}
	s, _ := c.Raw[name].(string)
	return s
}

// TokenValidator validates a bearer token.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// OIDCValidator verifies tokens against an issuer's JWKS.
type OIDCValidator struct {
	verifier *oidc.IDTokenVerifier
	issuers  map[string]struct{}
}

// NewOIDCValidator discovers issuerURL and verifies tokens for audience.
// allowedIssuers defaults to issuerURL alone.
func NewOIDCValidator(ctx context.Context, issuerURL, audience string, allowedIssuers []string) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	if len(allowedIssuers) == 0 {
		allowedIssuers = []string{issuerURL}
	}
	issuers := make(map[string]struct{}, len(allowedIssuers))
	for _, iss := range allowedIssuers {
		issuers[iss] = struct{}{}
	}
	return &OIDCValidator{
		verifier: provider.Verifier(&oidc.Config{ClientID: audience}),
		issuers:  issuers,
	}, nil
}

// Validate implements TokenValidator.
func (v *OIDCValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if _, ok := v.issuers[idToken.Issuer]; !ok {
		return nil, fmt.Errorf("issuer %q not allowed", idToken.Issuer)
	}
	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return &Claims{Subject: idToken.Subject, Issuer: idToken.Issuer, Raw: raw}, nil
}

// HS256Validator verifies tokens signed with a shared secret.
type HS256Validator struct {
	secret []byte
}

// NewHS256Validator returns a validator for secret.
func NewHS256Validator(secret string) (*HS256Validator, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &HS256Validator{secret: []byte(secret)}, nil
}

// Validate implements TokenValidator. Expiry is enforced when present.
func (v *HS256Validator) Validate(_ context.Context, token string) (*Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	out := &Claims{Raw: claims}
	out.Subject, _ = claims.GetSubject()
	out.Issuer, _ = claims.GetIssuer()
	return out, nil
}

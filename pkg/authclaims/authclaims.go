// Package authclaims verifies bearer tokens at the HTTP trust boundary
// (§6 "Trust boundary inputs"). Identity issuance itself is out of scope
// (§1 Non-goals); this package only checks signatures and shapes claims
// into the values every pipeline stage actually needs.
package authclaims

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/waqedi/platform/engine/domain"
)

// Claims are the token fields the pipeline trusts once signature
// verification succeeds. tenant_id always comes from here — never from a
// client-supplied header or query parameter (§6).
type Claims struct {
	Subject     string
	TenantID    string
	Roles       []string
	Permissions []string
	DeptID      string
}

// Verifier validates bearer tokens against a JWKS endpoint's keys.
type Verifier struct {
	keySet   jwk.Set
	issuer   string
	audience string
}

// NewVerifier builds a Verifier from an already-fetched key set. Callers
// typically obtain keySet via jwk.Fetch against the identity provider's
// JWKS endpoint at startup and refresh it periodically.
func NewVerifier(keySet jwk.Set, issuer, audience string) *Verifier {
	return &Verifier{keySet: keySet, issuer: issuer, audience: audience}
}

// Verify checks signature, issuer, audience, and expiry, then extracts
// claims. A missing or malformed tenant_id claim is an authorization
// failure, not a validation one (§6 error taxonomy: Authorization is
// non-retryable).
func (v *Verifier) Verify(ctx context.Context, bearerToken string) (Claims, error) {
	token, err := jwt.Parse([]byte(bearerToken),
		jwt.WithContext(ctx),
		jwt.WithKeySet(v.keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return Claims{}, domain.Wrap(domain.KindAuthorization, domain.TypeUnauthorized, "invalid bearer token", err)
	}

	tenantID, ok := stringClaim(token, "tenant_id")
	if !ok || tenantID == "" {
		return Claims{}, domain.New(domain.KindAuthorization, domain.TypeUnauthorized, "token missing tenant_id claim")
	}

	claims := Claims{
		Subject:  token.Subject(),
		TenantID: tenantID,
		DeptID:   mustStringClaim(token, "dept_id"),
	}
	claims.Roles, _ = stringSliceClaim(token, "roles")
	claims.Permissions, _ = stringSliceClaim(token, "permissions")
	return claims, nil
}

// HasPermission reports whether claims grant permission.
func (c Claims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func stringClaim(token jwt.Token, name string) (string, bool) {
	raw, ok := token.Get(name)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

func mustStringClaim(token jwt.Token, name string) string {
	s, _ := stringClaim(token, name)
	return s
}

func stringSliceClaim(token jwt.Token, name string) ([]string, bool) {
	raw, ok := token.Get(name)
	if !ok {
		return nil, false
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

package authclaims

import (
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

func TestHasPermission(t *testing.T) {
	c := Claims{Permissions: []string{"documents:read", "documents:write"}}
	if !c.HasPermission("documents:read") {
		t.Fatal("expected documents:read to be granted")
	}
	if c.HasPermission("documents:delete") {
		t.Fatal("did not expect documents:delete to be granted")
	}
}

func TestStringSliceClaimReadsJSONArray(t *testing.T) {
	token, err := jwt.NewBuilder().
		Subject("user-1").
		Claim("roles", []interface{}{"analyst", "admin"}).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}

	roles, ok := stringSliceClaim(token, "roles")
	if !ok {
		t.Fatal("expected roles claim to be present")
	}
	if len(roles) != 2 || roles[0] != "analyst" || roles[1] != "admin" {
		t.Fatalf("roles = %v, want [analyst admin]", roles)
	}
}

func TestStringClaimMissing(t *testing.T) {
	token, err := jwt.NewBuilder().Subject("user-1").Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	if _, ok := stringClaim(token, "tenant_id"); ok {
		t.Fatal("did not expect tenant_id claim to be present")
	}
}

package tenant

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, claims principalClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestParsePrincipalTokenValid(t *testing.T) {
	secret := []byte("test-secret")
	claims := principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "tenant-1",
		Roles:    []string{"clinician"},
	}
	s := signToken(t, secret, claims)

	p, err := ParsePrincipalToken(s, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.GetID() != "user-1" || p.GetTenantID() != "tenant-1" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestParsePrincipalTokenBadSignature(t *testing.T) {
	claims := principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		TenantID:         "tenant-1",
	}
	s := signToken(t, []byte("secret-a"), claims)

	if _, err := ParsePrincipalToken(s, []byte("secret-b")); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestParsePrincipalTokenMissingTenant(t *testing.T) {
	secret := []byte("test-secret")
	claims := principalClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	s := signToken(t, secret, claims)

	if _, err := ParsePrincipalToken(s, secret); err == nil {
		t.Fatal("expected error for missing tenant_id claim")
	}
}

package tenant

import "testing"

func TestAPIKeyCacheAuthenticateRoundTrip(t *testing.T) {
	c := NewAPIKeyCache(4) // cheapest valid bcrypt cost, keeps the test fast
	principal := &BasePrincipal{ID: "svc-1", TenantID: "tenant-1", Roles: []string{"service"}}

	if err := c.Put("key-1", "s3cr3t", principal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := c.Authenticate("key-1", "s3cr3t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.GetID() != "svc-1" {
		t.Fatalf("expected svc-1, got %s", got.GetID())
	}
}

func TestAPIKeyCacheAuthenticateWrongSecret(t *testing.T) {
	c := NewAPIKeyCache(4)
	_ = c.Put("key-1", "s3cr3t", &BasePrincipal{ID: "svc-1"})

	if _, err := c.Authenticate("key-1", "wrong"); err == nil {
		t.Fatal("expected authentication failure for wrong secret")
	}
}

func TestAPIKeyCacheUnknownKey(t *testing.T) {
	c := NewAPIKeyCache(4)
	if _, err := c.Authenticate("missing", "anything"); err == nil {
		t.Fatal("expected error for unknown key id")
	}
}

func TestAPIKeyCacheRevoke(t *testing.T) {
	c := NewAPIKeyCache(4)
	_ = c.Put("key-1", "s3cr3t", &BasePrincipal{ID: "svc-1"})
	c.Revoke("key-1")

	if _, err := c.Authenticate("key-1", "s3cr3t"); err == nil {
		t.Fatal("expected authentication failure after revoke")
	}
}

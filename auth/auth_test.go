package auth

import (
	"testing"
	"time"

	"parking-analyst/config"
)

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		Issuer:      "app.lvlparking.com",
		HS256Secret: "test-secret",
		OrgID:       "org-demo",
		DevZoneIDs:  []string{"z-110", "z-221"},
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	cfg := testAuthConfig()

	token, err := MintDevToken(cfg, "user-1", []string{"analyst", "approver"}, time.Hour)
	if err != nil {
		t.Fatalf("MintDevToken failed: %v", err)
	}

	user, err := NewVerifier(cfg).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if user.Sub != "user-1" {
		t.Errorf("sub = %q, want user-1", user.Sub)
	}
	if user.OrgID != "org-demo" {
		t.Errorf("org = %q, want org-demo", user.OrgID)
	}
	if !user.HasRole("approver") || user.HasRole("admin") {
		t.Errorf("unexpected roles: %v", user.Roles)
	}
	if !user.HasZone("z-110") || user.HasZone("z-999") {
		t.Errorf("unexpected zones: %v", user.ZoneIDs)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	cfg := testAuthConfig()
	token, err := MintDevToken(cfg, "user-1", nil, time.Hour)
	if err != nil {
		t.Fatalf("MintDevToken failed: %v", err)
	}

	other := *cfg
	other.HS256Secret = "different-secret"
	if _, err := NewVerifier(&other).Verify(token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	cfg := testAuthConfig()
	other := *cfg
	other.Issuer = "evil.example.com"

	token, err := MintDevToken(&other, "user-1", nil, time.Hour)
	if err != nil {
		t.Fatalf("MintDevToken failed: %v", err)
	}

	if _, err := NewVerifier(cfg).Verify(token); err == nil {
		t.Fatal("token from another issuer must be rejected")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	cfg := testAuthConfig()
	token, err := MintDevToken(cfg, "user-1", nil, -time.Minute)
	if err != nil {
		t.Fatalf("MintDevToken failed: %v", err)
	}

	if _, err := NewVerifier(cfg).Verify(token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

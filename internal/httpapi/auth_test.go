package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"outletpos/internal/domain"
)

func TestAuthManagerIssueAndParse(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour)

	resp, err := manager.Issue(domain.Session{StaffID: "stf_cashier", Role: domain.RoleCashier, TenantID: "tnt_demo"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if resp.Session.StaffID != "stf_cashier" {
		t.Fatalf("expected session echoed in response, got %+v", resp.Session)
	}

	principal, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if principal.StaffID != "stf_cashier" || principal.Role != domain.RoleCashier {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Minute)
	issuedAt := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return issuedAt }

	resp, err := manager.Issue(domain.Session{StaffID: "stf_owner", Role: domain.RoleOwner})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	manager.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("another-secret-that-is-long-enough-xx", time.Hour)
	resp, err := issuer.Issue(domain.Session{StaffID: "stf_owner", Role: domain.RoleOwner})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := NewAuthManager(testSecret, time.Hour).ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsUnsignedToken(t *testing.T) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "stf_owner",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleOwner,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	if _, err := NewAuthManager(testSecret, time.Hour).ParseToken(token); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}

func TestParseTokenRequiresSubject(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour)
	token, err := manager.sign("", domain.RoleOwner, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token without subject to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc.def":   "abc.def",
		"bearer   abc.def": "abc.def",
		"Basic abc":        "",
		"Bearer":           "",
		"":                 "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

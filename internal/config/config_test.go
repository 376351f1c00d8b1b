package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("OUTLETPOS_AUTH_SECRET", "")
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation to reject a missing secret")
	}
}

func TestLoadReadsPrefixedAndBareKeys(t *testing.T) {
	t.Setenv("OUTLETPOS_PORT", "9090")
	t.Setenv("VIEW_CACHE_TTL", "45s")
	t.Setenv("AUTH_SECRET", "  0123456789abcdef0123456789abcdef  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Address())
	}
	if cfg.ViewCacheTTL != 45*time.Second {
		t.Fatalf("expected 45s view cache ttl, got %s", cfg.ViewCacheTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected trimmed secret to validate, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccessTokenTTL != 8*time.Hour {
		t.Fatalf("expected 8h token ttl, got %s", cfg.AccessTokenTTL)
	}
	if !cfg.AutoMigrate {
		t.Fatalf("expected auto migrate to default on")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
port: "8080"
databaseURL: "postgres://localhost/library"
redisAddr: "localhost:6379"
jwtSecret: "test-secret"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LoanPeriodDays != 14 {
		t.Fatalf("expected default loan period 14, got %d", cfg.LoanPeriodDays)
	}
	if cfg.FinePerDay != 5 {
		t.Fatalf("expected default fine 5, got %d", cfg.FinePerDay)
	}
	if cfg.MaxActiveBorrows != 5 {
		t.Fatalf("expected default borrow limit 5, got %d", cfg.MaxActiveBorrows)
	}
	if cfg.MaxCoverBytes != 5<<20 {
		t.Fatalf("expected default cover limit, got %d", cfg.MaxCoverBytes)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	t.Setenv("PORT", "9090")
	t.Setenv("LOAN_PERIOD_DAYS", "7")
	t.Setenv("FINE_PER_DAY", "10")
	t.Setenv("TRUSTED_PROXY_CIDRS", "10.0.0.0/8, 192.168.1.1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected PORT override, got %s", cfg.Port)
	}
	if cfg.LoanPeriodDays != 7 || cfg.FinePerDay != 10 {
		t.Fatalf("expected numeric overrides, got %d/%d", cfg.LoanPeriodDays, cfg.FinePerDay)
	}
	if len(cfg.TrustedProxyCIDRs) != 2 || cfg.TrustedProxyCIDRs[0] != "10.0.0.0/8" {
		t.Fatalf("expected parsed CSV, got %v", cfg.TrustedProxyCIDRs)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing port", `
databaseURL: "postgres://localhost/library"
redisAddr: "localhost:6379"
jwtSecret: "s"
`},
		{"missing database", `
port: "8080"
redisAddr: "localhost:6379"
jwtSecret: "s"
`},
		{"missing redis", `
port: "8080"
databaseURL: "postgres://localhost/library"
jwtSecret: "s"
`},
		{"missing jwt secret", `
port: "8080"
databaseURL: "postgres://localhost/library"
redisAddr: "localhost:6379"
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseDurations(t *testing.T) {
	ttl, err := ParseSessionTTL("168h")
	if err != nil || ttl != 168*time.Hour {
		t.Fatalf("parse ttl: %v %v", ttl, err)
	}
	if _, err := ParseSessionTTL("bogus"); err == nil {
		t.Fatal("expected error for bad TTL")
	}

	interval, err := ParseSweepInterval("")
	if err != nil || interval != 0 {
		t.Fatalf("empty sweep interval should disable, got %v %v", interval, err)
	}
	if _, err := ParseSweepInterval("-1h"); err == nil {
		t.Fatal("expected error for negative interval")
	}
}

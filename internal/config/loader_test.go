package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SITE_GEN_TEST_HOST", "db.internal")

	got := expandEnv("host: ${SITE_GEN_TEST_HOST:localhost} port: ${SITE_GEN_TEST_PORT:5432} key: ${SITE_GEN_TEST_MISSING}")
	want := "host: db.internal port: 5432 key: ${SITE_GEN_TEST_MISSING}"
	if got != want {
		t.Fatalf("expandEnv = %q, want %q", got, want)
	}
}

func TestLoadFromMergesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
backend:
  url: ${SITE_GEN_TEST_BACKEND:https://example.supabase.co}
  public_key: anon
security:
  jwt:
    secret: s3cret
deploy:
  provider: simulated
  simulated:
    delay: 1s
`)
	writeConfig(t, dir, "config.staging.yaml", `
deploy:
  simulated:
    delay: 5s
    failure_rate: 0.5
`)
	t.Setenv("APP_ENV", "staging")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Backend.URL != "https://example.supabase.co" {
		t.Fatalf("unexpected backend url %q", cfg.Backend.URL)
	}
	if cfg.Deploy.Simulated.Delay != 5*time.Second || cfg.Deploy.Simulated.FailureRate != 0.5 {
		t.Fatalf("environment file not merged: %+v", cfg.Deploy.Simulated)
	}
	if cfg.Auth.CallbackPath != "/auth/callback" || cfg.Auth.StateTTL != 10*time.Minute {
		t.Fatalf("defaults not applied: %+v", cfg.Auth)
	}
	if len(cfg.Auth.Providers) != 2 {
		t.Fatalf("expected default providers, got %v", cfg.Auth.Providers)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadFromMissingBaseFile(t *testing.T) {
	if _, err := LoadFrom(t.TempDir()); err == nil {
		t.Fatalf("expected error when config.yaml is missing")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Backend:  BackendConfig{URL: "https://x", PublicKey: "k"},
			Security: SecurityConfig{JWT: JWTConfig{Secret: "s"}},
			Deploy:   DeployConfig{Provider: DeployProviderSimulated},
		}
	}

	cases := map[string]func(*Config){
		"missing backend url": func(c *Config) { c.Backend.URL = "" },
		"missing public key":  func(c *Config) { c.Backend.PublicKey = "" },
		"missing jwt secret":  func(c *Config) { c.Security.JWT.Secret = "" },
		"bad failure rate":    func(c *Config) { c.Deploy.Simulated.FailureRate = 1.5 },
		"unknown provider":    func(c *Config) { c.Deploy.Provider = "ftp" },
		"http without url":    func(c *Config) { c.Deploy.Provider = DeployProviderHTTP },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
identity:
  issuer: https://id.example.com
  audience: flowd
  jwks_url: https://id.example.com/.well-known/jwks.json
access:
  static_policy_file: /etc/flowd/policy.yaml
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("default storage driver = %q", cfg.Storage.Driver)
	}
	if cfg.Engine.CASRetries != 3 {
		t.Errorf("default cas retries = %d", cfg.Engine.CASRetries)
	}
	if cfg.Tasks.Cache.TTL != 10*time.Second {
		t.Errorf("default tasks cache ttl = %v", cfg.Tasks.Cache.TTL)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default log level = %q", cfg.Observability.LogLevel)
	}
}

func TestLoad_minimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Identity.Issuer != "https://id.example.com" {
		t.Errorf("issuer = %q", cfg.Identity.Issuer)
	}
	// Unset fields keep their defaults.
	if cfg.Server.HandlerTimeout != 25*time.Second {
		t.Errorf("handler timeout = %v", cfg.Server.HandlerTimeout)
	}
}

func TestLoad_overridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+`
server:
  port: 9090
engine:
  cas_retries: 5
storage:
  driver: postgres
  dsn_env: MY_DSN
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Engine.CASRetries != 5 {
		t.Errorf("cas retries = %d", cfg.Engine.CASRetries)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSNEnv != "MY_DSN" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv("FLOWD_SERVER_PORT", "7070")
	t.Setenv("FLOWD_OBSERVABILITY_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, env override not applied", cfg.Server.Port)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.Observability.LogLevel)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load on a missing file should fail")
	}
}

func TestValidate_collectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	cfg.Storage.Driver = "sqlite"
	cfg.Engine.CASRetries = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate should fail")
	}
	for _, want := range []string{"server.port", "identity.issuer", "storage.driver", "engine.cas_retries"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_staticEvaluatorNeedsPolicyFile(t *testing.T) {
	cfg := Defaults()
	cfg.Identity = IdentityConfig{
		Issuer: "i", Audience: "a", JWKSURL: "j",
	}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "static_policy_file") {
		t.Errorf("expected static_policy_file error, got %v", err)
	}

	cfg.Access.StaticPolicyFile = "/etc/flowd/policy.yaml"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

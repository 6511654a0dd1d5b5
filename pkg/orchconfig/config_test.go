package orchconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsAppliedWithoutOverrideFileOrEnv(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AgentModeEnabled {
		t.Fatalf("expected agent mode disabled by default")
	}
	if cfg.FailureThreshold != 3 {
		t.Fatalf("expected default failure threshold 3, got %d", cfg.FailureThreshold)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("expected default cache ttl 24h, got %s", cfg.CacheTTL)
	}
	if cfg.AgentMaxIterations != 50 {
		t.Fatalf("expected default agent max iterations 50, got %d", cfg.AgentMaxIterations)
	}
}

func TestLoad_ProcessEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	overridePath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(overridePath, []byte("generic_api_key: from-file\nfailure_threshold: 9\n"), 0o644); err != nil {
		t.Fatalf("write override file: %v", err)
	}

	t.Setenv("GENERIC_API_KEY", "from-env")

	cfg, err := Load(WithOverrideFile(overridePath))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GenericAPIKey != "from-env" {
		t.Fatalf("expected process environment to win over the override file, got %q", cfg.GenericAPIKey)
	}
	if cfg.FailureThreshold != 9 {
		t.Fatalf("expected the override file value to apply when no env var is set, got %d", cfg.FailureThreshold)
	}
}

func TestLoad_MissingOverrideFileIsNotAnError(t *testing.T) {
	if _, err := Load(WithOverrideFile(filepath.Join(t.TempDir(), "missing.yaml"))); err != nil {
		t.Fatalf("expected a missing override file to be tolerated, got: %v", err)
	}
}

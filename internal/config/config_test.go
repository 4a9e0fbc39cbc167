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
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_fileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
dispatch:
  timeout: 30s
workflow:
  store:
    driver: postgres
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Dispatch.Timeout != 30*time.Second {
		t.Errorf("dispatch timeout = %v, want 30s", cfg.Dispatch.Timeout)
	}
	if cfg.Workflow.Store.Driver != "postgres" {
		t.Errorf("workflow store driver = %q", cfg.Workflow.Store.Driver)
	}
	// Untouched sections keep their defaults.
	if cfg.Dispatch.MaxResponseBytes != 10<<20 {
		t.Errorf("max response bytes = %d", cfg.Dispatch.MaxResponseBytes)
	}
}

func TestLoad_emptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoad_invalidDriverRejected(t *testing.T) {
	path := writeConfig(t, `
registry:
  store:
    driver: sqlite
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown driver")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GENWAY_SERVER_PORT", "7070")
	t.Setenv("GENWAY_OBSERVABILITY_LOG_LEVEL", "debug")
	t.Setenv("GENWAY_STORE_DRIVER", "postgres")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.Observability.LogLevel)
	}
	if cfg.Registry.Store.Driver != "postgres" || cfg.Workflow.Store.Driver != "postgres" {
		t.Errorf("store drivers not overridden: %q %q",
			cfg.Registry.Store.Driver, cfg.Workflow.Store.Driver)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("default log level = %q", cfg.Server.LogLevel)
	}
	if cfg.Bus.QueueSize != 256 || cfg.Bus.BatchSize != 16 {
		t.Errorf("bus defaults = %d/%d", cfg.Bus.QueueSize, cfg.Bus.BatchSize)
	}
	if cfg.Persistence.Backend != "json" {
		t.Errorf("default backend = %q", cfg.Persistence.Backend)
	}
	if cfg.World.PruneThreshold != 0.05 {
		t.Errorf("default prune threshold = %v", cfg.World.PruneThreshold)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("CURIA_REDIS_URL", "redis://example:6379/2")
	cfg, err := Load(writeConfig(t, `{
		"persistence": {
			"backend": "redis",
			"redis": {"url": "${CURIA_REDIS_URL}"}
		},
		"server": {"log_level": "${CURIA_LOG_LEVEL:debug}"}
	}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Persistence.Redis.URL != "redis://example:6379/2" {
		t.Errorf("env substitution failed: %q", cfg.Persistence.Redis.URL)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("default fallback failed: %q", cfg.Server.LogLevel)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	if _, err := Load(writeConfig(t, `{not json`)); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

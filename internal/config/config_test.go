package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NOTEBOARD_CONFIG", "")
	t.Setenv("API_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("Addr = %q, want :8787", cfg.Addr)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Fatalf("expected memory backends by default, got db=%q redis=%q", cfg.DatabaseURL, cfg.RedisURL)
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("SessionTTL = %v, want 12h", cfg.SessionTTL)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noteboard.yaml")
	contents := []byte("addr: \":9000\"\nredisUrl: redis://cache:6379/1\nsessionTtl: 90s\nchannel: board:a\n")
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NOTEBOARD_CONFIG", path)
	t.Setenv("API_ADDR", ":9100")
	t.Setenv("REDIS_URL", "")
	t.Setenv("NOTEBOARD_SESSION_TTL_SECONDS", "")
	t.Setenv("NOTEBOARD_CHANNEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("Addr = %q, want env override :9100", cfg.Addr)
	}
	if cfg.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.SessionTTL != 90*time.Second {
		t.Fatalf("SessionTTL = %v, want 90s", cfg.SessionTTL)
	}
	if cfg.Channel != "board:a" {
		t.Fatalf("Channel = %q", cfg.Channel)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	t.Setenv("NOTEBOARD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestGetenvSecondsIgnoresInvalid(t *testing.T) {
	t.Setenv("NOTEBOARD_WS_PING_SECONDS", "soon")
	if got := getenvSeconds("NOTEBOARD_WS_PING_SECONDS", time.Minute); got != time.Minute {
		t.Fatalf("getenvSeconds = %v, want fallback", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreComplete(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr == "" || cfg.Server.DatabasePath == "" {
		t.Fatalf("incomplete server defaults: %+v", cfg.Server)
	}
	if cfg.Session.ReconnectInterval <= 0 || cfg.Session.MaxReconnectAttempts <= 0 {
		t.Fatalf("incomplete session defaults: %+v", cfg.Session)
	}
	if cfg.Session.TypingQuietPeriod <= 0 || cfg.Session.SendRetryDelay <= 0 {
		t.Fatalf("incomplete session defaults: %+v", cfg.Session)
	}
}

func TestLoadCreatesDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, gotPath, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotPath != path {
		t.Fatalf("resolved path %q, want %q", gotPath, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Fatalf("unexpected defaults %+v", cfg.Server)
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	contents := `server:
  addr: ":9999"
  database_path: "custom.db"
session:
  reconnect_interval: 7s
  max_reconnect_attempts: 9
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" || cfg.Server.DatabasePath != "custom.db" {
		t.Fatalf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Session.ReconnectInterval != 7*time.Second || cfg.Session.MaxReconnectAttempts != 9 {
		t.Fatalf("session values not applied: %+v", cfg.Session)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level not applied: %+v", cfg.Log)
	}

	// Keys absent from the file keep their defaults.
	if cfg.Session.TypingQuietPeriod != Default().Session.TypingQuietPeriod {
		t.Fatalf("default lost: %+v", cfg.Session)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("VELORA_SERVER_ADDR", ":7777")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Fatalf("env override not applied: %q", cfg.Server.Addr)
	}
}

func TestUpdateFromSkipsZeroValues(t *testing.T) {
	cfg := Default()
	base := cfg

	cfg.UpdateFrom(Config{})
	if cfg != base {
		t.Fatalf("zero overrides changed config: %+v", cfg)
	}

	cfg.UpdateFrom(Config{Server: ServerConfig{Addr: ":1234"}})
	if cfg.Server.Addr != ":1234" {
		t.Fatalf("override not applied: %+v", cfg.Server)
	}
	if cfg.Server.DatabasePath != base.Server.DatabasePath {
		t.Fatalf("unrelated field changed: %+v", cfg.Server)
	}
}

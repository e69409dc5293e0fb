package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DURANGO_CONFIG_DIR", dir)
	writeConfig(t, dir, `
machine_id: m-1
user_id: u-1
token: tok-1
relay_url: https://relay.example.com
web_url: https://web.example.com
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MachineID != "m-1" || cfg.UserID != "u-1" || cfg.Token != "tok-1" {
		t.Errorf("identity fields = %q %q %q", cfg.MachineID, cfg.UserID, cfg.Token)
	}
	if cfg.RelayURL != "https://relay.example.com" {
		t.Errorf("RelayURL = %q", cfg.RelayURL)
	}
	if cfg.CodexBin != "codex" {
		t.Errorf("CodexBin default = %q", cfg.CodexBin)
	}
	if cfg.CodexAppServerURL != "ws://127.0.0.1:48765" {
		t.Errorf("CodexAppServerURL default = %q", cfg.CodexAppServerURL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DURANGO_CONFIG_DIR", dir)
	writeConfig(t, dir, `
machine_id: m-1
user_id: u-1
token: tok-1
relay_url: https://file.example.com
`)
	t.Setenv("DURANGO_RELAY_URL", "https://env.example.com")
	t.Setenv("DURANGO_CODEX_BIN", "/opt/codex/bin/codex")
	t.Setenv("CODEX_VERSION", "9.9.9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RelayURL != "https://env.example.com" {
		t.Errorf("RelayURL = %q, want env override", cfg.RelayURL)
	}
	if cfg.CodexBin != "/opt/codex/bin/codex" {
		t.Errorf("CodexBin = %q", cfg.CodexBin)
	}
	if cfg.CodexVersion != "9.9.9" {
		t.Errorf("CodexVersion = %q", cfg.CodexVersion)
	}
}

func TestLoadMissingIdentity(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DURANGO_CONFIG_DIR", dir)
	writeConfig(t, dir, `
machine_id: m-1
`)
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without user_id/token")
	}
}

func TestDirHonorsEnv(t *testing.T) {
	t.Setenv("DURANGO_CONFIG_DIR", "/tmp/durango-test")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if dir != "/tmp/durango-test" {
		t.Errorf("Dir = %q", dir)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultInstance = "shop"
	cfg.Relay.RemoteURL = "http://127.0.0.1:9000/sync"
	cfg.Relay.Interval = Duration{2 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultInstance != "shop" {
		t.Errorf("DefaultInstance = %q, want %q", loaded.DefaultInstance, "shop")
	}
	if loaded.Relay.RemoteURL != cfg.Relay.RemoteURL {
		t.Errorf("RemoteURL = %q, want %q", loaded.Relay.RemoteURL, cfg.Relay.RemoteURL)
	}
	if loaded.Relay.Interval.Duration != 2*time.Second {
		t.Errorf("Interval = %s, want 2s", loaded.Relay.Interval)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[relay]\nbatch_size = 5\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Relay.BatchSize != 5 {
		t.Errorf("BatchSize = %d, want 5", cfg.Relay.BatchSize)
	}
	if cfg.Relay.RatePerSec != 10 || cfg.Log.Level != "info" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestResolveWithoutFile(t *testing.T) {
	t.Setenv(EnvRemoteURL, "")
	t.Setenv(EnvHTTPAddr, "")
	cfg, err := Resolve(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.DefaultInstance != "main" {
		t.Errorf("DefaultInstance = %q, want main", cfg.DefaultInstance)
	}
	if cfg.HTTP.Enabled {
		t.Error("HTTP enabled by an empty override")
	}
}

func TestResolveEnvOverrides(t *testing.T) {
	t.Setenv(EnvHTTPAddr, "127.0.0.1:9999")
	t.Setenv(EnvRemoteURL, "http://remote.example/api/sync")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvInterval, "30")

	cfg, err := Resolve(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Relay.RemoteURL != "http://remote.example/api/sync" {
		t.Errorf("RemoteURL = %q", cfg.Relay.RemoteURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.Relay.Interval.Duration != 30*time.Second {
		t.Errorf("Interval = %s, want 30s", cfg.Relay.Interval)
	}
}

func TestResolveDotEnv(t *testing.T) {
	dir := t.TempDir()
	// godotenv never overrides variables that are already set, so make sure
	// this one is not.
	if err := os.Unsetenv(EnvLogLevel); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(EnvLogLevel) })
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvLogLevel+"=warn\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Resolve(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Log.Level)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad url", func(c *Config) { c.Relay.RemoteURL = "not a url" }},
		{"zero batch", func(c *Config) { c.Relay.BatchSize = 0 }},
		{"zero rate", func(c *Config) { c.Relay.RatePerSec = 0 }},
		{"zero interval", func(c *Config) { c.Relay.Interval = Duration{} }},
		{"http without addr", func(c *Config) { c.HTTP.Enabled = true; c.HTTP.ListenAddr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

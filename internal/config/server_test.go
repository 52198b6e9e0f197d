package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadServerDefaults verifies the built-in baseline.
func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.ListenAddr != ":8090" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if !cfg.AllowsExtension(".mp3") || !cfg.AllowsExtension(".M4A") {
		t.Fatal("default extensions should allow mp3 and m4a")
	}
	if cfg.AllowsExtension(".exe") {
		t.Fatal("exe should not be allowed")
	}
	if cfg.EventBufferSize != 500 {
		t.Fatalf("event buffer = %d", cfg.EventBufferSize)
	}
}

// TestLoadServerEnvOverride verifies SPEECHFLOW_* variables win.
func TestLoadServerEnvOverride(t *testing.T) {
	t.Setenv("SPEECHFLOW_LISTEN_ADDR", "127.0.0.1:9999")

	cfg, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("listen addr = %q, want env override", cfg.ListenAddr)
	}
}

// TestLoadServerYAMLFile verifies file-based configuration.
func TestLoadServerYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := "listen_addr: \":7070\"\nallowed_extensions:\n  - .wav\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.AllowsExtension(".mp3") {
		t.Fatal("file config should narrow extensions to wav only")
	}
	if !cfg.AllowsExtension(".wav") {
		t.Fatal("wav should be allowed")
	}
}

// TestLoadServerMissingFileFails verifies explicit paths are strict.
func TestLoadServerMissingFileFails(t *testing.T) {
	if _, err := LoadServer(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

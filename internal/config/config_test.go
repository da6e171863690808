package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `session:
  rows: 40
  cols: 120
  term: "screen-256color"
  no_default_env: true
  no_osc_emulation: true
  write_timeout_ms: 500
  kill_grace_ms: 1000
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Session.Rows != 40 || cfg.Session.Cols != 120 {
		t.Errorf("size = %dx%d, want 40x120", cfg.Session.Rows, cfg.Session.Cols)
	}
	if cfg.Session.Term != "screen-256color" {
		t.Errorf("term = %q, want screen-256color", cfg.Session.Term)
	}
	if !cfg.Session.NoDefaultEnv {
		t.Error("expected no_default_env = true")
	}
	if !cfg.Session.NoOSCEmulation {
		t.Error("expected no_osc_emulation = true")
	}
	if cfg.Session.WriteTimeout() != 500*time.Millisecond {
		t.Errorf("WriteTimeout() = %v, want 500ms", cfg.Session.WriteTimeout())
	}
	if cfg.Session.KillGrace() != time.Second {
		t.Errorf("KillGrace() = %v, want 1s", cfg.Session.KillGrace())
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.Session.Rows != 24 || cfg.Session.Cols != 80 {
		t.Errorf("expected built-in default size 80x24, got %dx%d", cfg.Session.Cols, cfg.Session.Rows)
	}
	if cfg.Session.Term != "xterm-256color" {
		t.Errorf("expected built-in default term, got %q", cfg.Session.Term)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadFrom_PartialOverridePreservesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("session:\n  no_osc_emulation: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if !cfg.Session.NoOSCEmulation {
		t.Error("expected no_osc_emulation = true")
	}
	if cfg.Session.Rows != 24 || cfg.Session.Cols != 80 {
		t.Errorf("expected default size to survive a partial override, got %dx%d", cfg.Session.Cols, cfg.Session.Rows)
	}
	if cfg.Session.Term != "xterm-256color" {
		t.Errorf("expected default term to survive a partial override, got %q", cfg.Session.Term)
	}
}

func TestLoadFrom_InvalidSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("session:\n  rows: 0\n  cols: 80\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for rows: 0")
	}
}

func TestDefaultWaitTimeout(t *testing.T) {
	var d SessionDefaults
	if d.DefaultWaitTimeout() != 30*time.Second {
		t.Errorf("DefaultWaitTimeout() = %v, want 30s", d.DefaultWaitTimeout())
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Address != DefaultAddress {
		t.Errorf("Address = %q, want %q", cfg.Address, DefaultAddress)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Compiler.Command != DefaultCompiler {
		t.Errorf("Compiler.Command = %q, want %q", cfg.Compiler.Command, DefaultCompiler)
	}
	if cfg.Session.MaxBrokenPipes != DefaultMaxBrokenPipes {
		t.Errorf("Session.MaxBrokenPipes = %d, want %d", cfg.Session.MaxBrokenPipes, DefaultMaxBrokenPipes)
	}
	if cfg.NoRecompile {
		t.Error("NoRecompile should default to false")
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	// Test loading non-existent config
	if _, err := Load(tmpDir); err == nil {
		t.Error("Expected error for missing config")
	}

	configJSON := `{
  "address": "0.0.0.0",
  "port": 8080,
  "filename": "main.typ",
  "compiler": {
    "args": ["--root", "."]
  },
  "watch": ["chapters"],
  "session": {
    "maxBrokenPipes": 3
  }
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Address != "0.0.0.0" {
		t.Errorf("Address = %q, want %q", cfg.Address, "0.0.0.0")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want %d", cfg.Port, 8080)
	}
	if cfg.Filename != filepath.Join(tmpDir, "main.typ") {
		t.Errorf("Filename = %q, want it resolved against the config dir", cfg.Filename)
	}
	if cfg.Compiler.Command != DefaultCompiler {
		t.Errorf("Compiler.Command = %q, want default %q", cfg.Compiler.Command, DefaultCompiler)
	}
	if len(cfg.Compiler.Args) != 2 {
		t.Errorf("Compiler.Args = %v, want 2 entries", cfg.Compiler.Args)
	}
	if len(cfg.Watch) != 1 || cfg.Watch[0] != filepath.Join(tmpDir, "chapters") {
		t.Errorf("Watch = %v", cfg.Watch)
	}
	if cfg.Session.MaxBrokenPipes != 3 {
		t.Errorf("Session.MaxBrokenPipes = %d, want 3", cfg.Session.MaxBrokenPipes)
	}
	if cfg.Session.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("Session.WriteTimeout = %q, want default", cfg.Session.WriteTimeout)
	}
	if cfg.Dir() != tmpDir {
		t.Errorf("Dir() = %q, want %q", cfg.Dir(), tmpDir)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOrDefault error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default", cfg.Port)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty for defaults", cfg.Path())
	}
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(configPath, []byte("not valid json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "T101") {
		t.Errorf("Expected T101 error, got: %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil || !strings.Contains(err.Error(), "T100") {
		t.Errorf("Expected T100 error, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tmpDir := t.TempDir()
	doc := filepath.Join(tmpDir, "main.typ")
	if err := os.WriteFile(doc, []byte("= Hello"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := New()
	cfg.Filename = doc
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate should pass for valid config: %v", err)
	}

	cfg.Port = -1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "T102") {
		t.Errorf("Validate should fail for negative port, got %v", err)
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should fail for port > 65535")
	}
	cfg.Port = DefaultPort

	cfg.Filename = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "T103") {
		t.Errorf("Validate should fail without a document, got %v", err)
	}

	cfg.Filename = filepath.Join(tmpDir, "missing.typ")
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "T104") {
		t.Errorf("Validate should fail for a missing document, got %v", err)
	}

	// A missing artifact is fine when it is served as-is.
	cfg.NoRecompile = true
	cfg.Filename = filepath.Join(tmpDir, "missing.pdf")
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate should allow a missing artifact with NoRecompile: %v", err)
	}
	cfg.NoRecompile = false
	cfg.Filename = doc

	cfg.Ignore = []string{"[unterminated"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "T105") {
		t.Errorf("Validate should reject a bad glob, got %v", err)
	}
	cfg.Ignore = nil

	cfg.Session.WriteTimeout = "soon"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject an unparsable write timeout")
	}
}

func TestServeAddress(t *testing.T) {
	cfg := New()
	cfg.Address = "0.0.0.0"
	cfg.Port = 8080

	if got := cfg.ServeAddress(); got != "0.0.0.0:8080" {
		t.Errorf("ServeAddress = %q, want %q", got, "0.0.0.0:8080")
	}
	if got := cfg.URL(); got != "http://0.0.0.0:8080" {
		t.Errorf("URL = %q, want %q", got, "http://0.0.0.0:8080")
	}

	cfg.Address = "::1"
	if got := cfg.ServeAddress(); got != "[::1]:8080" {
		t.Errorf("ServeAddress IPv6 = %q, want %q", got, "[::1]:8080")
	}
}

func TestArtifactPath(t *testing.T) {
	cfg := New()
	cfg.Filename = filepath.Join("docs", "thesis.typ")

	if got, want := cfg.ArtifactPath(), filepath.Join("docs", OutputFileName); got != want {
		t.Errorf("ArtifactPath = %q, want %q", got, want)
	}

	cfg.NoRecompile = true
	cfg.Filename = "doc.pdf"
	if got := cfg.ArtifactPath(); got != "doc.pdf" {
		t.Errorf("ArtifactPath with NoRecompile = %q, want %q", got, "doc.pdf")
	}
}

func TestWriteTimeout(t *testing.T) {
	cfg := New()
	if got := cfg.WriteTimeout(); got != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", got)
	}

	cfg.Session.WriteTimeout = "250ms"
	if got := cfg.WriteTimeout(); got != 250*time.Millisecond {
		t.Errorf("WriteTimeout = %v, want 250ms", got)
	}

	cfg.Session.WriteTimeout = "garbage"
	if got := cfg.WriteTimeout(); got != 10*time.Second {
		t.Errorf("WriteTimeout fallback = %v, want 10s", got)
	}
}

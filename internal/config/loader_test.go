package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

func TestLoadReturnsDefaultsWhenFilesAbsent(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.json"), filepath.Join(dir, "also-missing.json"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if _, ok := cfg.Executors["dry-run"]; !ok {
		t.Error("Expected default dry-run executor")
	}
	if _, ok := cfg.Executors["shell"]; !ok {
		t.Error("Expected default shell executor")
	}
	if cfg.Run.MaxConcurrency != 4 {
		t.Errorf("Expected default concurrency 4, got %d", cfg.Run.MaxConcurrency)
	}
	if cfg.Journal.Path != ".conductor/runs.db" {
		t.Errorf("Expected default journal path, got %q", cfg.Journal.Path)
	}
}

func TestLoadMergePrecedence(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.json")
	projectPath := filepath.Join(dir, "project.json")

	writeFile(t, globalPath, `{
		"executors": {
			"builder": {"type": "command", "capabilities": ["build"], "command": "make"}
		},
		"run": {"max_concurrency": 8}
	}`)
	writeFile(t, projectPath, `{
		"executors": {
			"builder": {"type": "command", "capabilities": ["build"], "command": "bazel"},
			"tester": {"type": "command", "capabilities": ["test"], "command": "pytest"}
		},
		"run": {"max_concurrency": 2, "fail_fast": true}
	}`)

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Project wins per executor key.
	if cfg.Executors["builder"].Command != "bazel" {
		t.Errorf("Expected project builder to win, got %q", cfg.Executors["builder"].Command)
	}
	if cfg.Executors["tester"].Command != "pytest" {
		t.Error("Expected project-only executor to be present")
	}
	// Defaults survive unless overridden.
	if _, ok := cfg.Executors["dry-run"]; !ok {
		t.Error("Expected default executors to survive the merge")
	}
	// Run block replaces wholesale.
	if cfg.Run.MaxConcurrency != 2 || !cfg.Run.FailFast {
		t.Errorf("Expected project run settings, got %+v", cfg.Run)
	}
}

func TestLoadGlobalOnlyApplies(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.json")

	writeFile(t, globalPath, `{"run": {"max_concurrency": 16}}`)

	cfg, err := Load(globalPath, filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Run.MaxConcurrency != 16 {
		t.Errorf("Expected global concurrency 16, got %d", cfg.Run.MaxConcurrency)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	writeFile(t, path, `{not json`)

	if _, err := Load(path, ""); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Run.MaxConcurrency = 7
	cfg.Journal.Disabled = true

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Run.MaxConcurrency != 7 {
		t.Errorf("Expected concurrency 7 after round trip, got %d", loaded.Run.MaxConcurrency)
	}
	if !loaded.Journal.Disabled {
		t.Error("Expected journal disabled after round trip")
	}
}

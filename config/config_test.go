package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Run.MaxSteps != 100_000_000 {
		t.Errorf("Expected MaxSteps=100000000, got %d", cfg.Run.MaxSteps)
	}
	if cfg.Run.MemorySizeHint != 1<<20 {
		t.Errorf("Expected MemorySizeHint=1MB, got %d", cfg.Run.MemorySizeHint)
	}
	if cfg.Run.Entry != "0x1000" {
		t.Errorf("Expected Entry=0x1000, got %s", cfg.Run.Entry)
	}
	if cfg.Assemble.WarnUnusedSymbols {
		t.Error("Expected WarnUnusedSymbols=false")
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()

	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("Expected path to end with config.toml, got %s", path)
	}

	switch runtime.GOOS {
	case "windows":
		if !filepath.IsAbs(path) && path != "config.toml" {
			t.Errorf("Expected absolute path on Windows, got %s", path)
		}

	case "darwin", "linux":
		dir := filepath.Dir(path)
		if filepath.Base(dir) != "rvm32" && path != "config.toml" {
			t.Errorf("Expected path in rvm32 directory or fallback, got %s", path)
		}
	}
}

func TestGetLogPath(t *testing.T) {
	path := GetLogPath()

	if path == "" {
		t.Error("GetLogPath returned empty string")
	}

	switch runtime.GOOS {
	case "windows":
		if !filepath.IsAbs(path) && path != "logs" {
			t.Errorf("Expected absolute path on Windows, got %s", path)
		}

	case "darwin", "linux":
		if filepath.Base(path) != "logs" {
			t.Errorf("Expected path to end with logs, got %s", path)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.toml")

	cfg := DefaultConfig()
	cfg.Run.MaxSteps = 5000
	cfg.Run.Entry = "0x2000"
	cfg.Run.TraceFile = "trace.bin"
	cfg.Assemble.WarnUnusedSymbols = true

	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Run.MaxSteps != 5000 {
		t.Errorf("Expected MaxSteps=5000, got %d", loaded.Run.MaxSteps)
	}
	if loaded.Run.Entry != "0x2000" {
		t.Errorf("Expected Entry=0x2000, got %s", loaded.Run.Entry)
	}
	if loaded.Run.TraceFile != "trace.bin" {
		t.Errorf("Expected TraceFile=trace.bin, got %s", loaded.Run.TraceFile)
	}
	if !loaded.Assemble.WarnUnusedSymbols {
		t.Error("Expected WarnUnusedSymbols=true")
	}
}

func TestLoadNonExistent(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nonexistent.toml")

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom should not error on non-existent file: %v", err)
	}

	if cfg.Run.MaxSteps != 100_000_000 {
		t.Error("Expected default config when file doesn't exist")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid.toml")

	invalidTOML := `
[run]
max_steps = "not a number"
`
	if err := os.WriteFile(configPath, []byte(invalidTOML), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	_, err := LoadFrom(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid TOML")
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subdir1", "subdir2", "config.toml")

	cfg := DefaultConfig()
	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	dir := filepath.Dir(configPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("Parent directories were not created")
	}
}

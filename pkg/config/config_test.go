package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/kvs/pkg/engine"
	"github.com/cuemby/kvs/pkg/log"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load(\"\") = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoadMergesOverFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kvs.yml")
	contents := "addr: \"0.0.0.0:9000\"\nengine: sled\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9000" {
		t.Fatalf("Addr = %q, want 0.0.0.0:9000", cfg.Addr)
	}
	if cfg.Engine != engine.Sled {
		t.Fatalf("Engine = %q, want sled", cfg.Engine)
	}
	if cfg.CompactionThresholdBytes != Default().CompactionThresholdBytes {
		t.Fatalf("CompactionThresholdBytes should keep default when absent from file")
	}
	if cfg.LogLevel != log.InfoLevel {
		t.Fatalf("LogLevel should keep default when absent from file")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/kvs.yml"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

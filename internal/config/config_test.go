package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChunkSize != 10_000 {
		t.Fatalf("chunk size = %d, want default 10000", cfg.ChunkSize)
	}
	if cfg.SweepExpired {
		t.Fatal("sweeper enabled by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rowlock.yaml")
	body := "chunk_size: 500\nspill_threshold_bytes: 1024\naudit_db: journal.db\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChunkSize != 500 {
		t.Fatalf("chunk size = %d, want 500", cfg.ChunkSize)
	}
	if cfg.SpillThresholdBytes != 1024 {
		t.Fatalf("threshold = %d, want 1024", cfg.SpillThresholdBytes)
	}
	if cfg.AuditDB != "journal.db" {
		t.Fatalf("audit db = %q", cfg.AuditDB)
	}
	// Untouched fields keep defaults.
	if cfg.SpillMaxEntries != 64 {
		t.Fatalf("spill entries = %d, want default 64", cfg.SpillMaxEntries)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rowlock.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: -1\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative chunk size")
	}
}

func TestResolvePathEnvOverride(t *testing.T) {
	t.Setenv("ROWLOCK_CONFIG", "/etc/rowlock/custom.yaml")
	if got := ResolvePath(); got != "/etc/rowlock/custom.yaml" {
		t.Fatalf("path = %q", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReflector_DefaultsOnly(t *testing.T) {
	cfg, err := LoadReflector("")
	if err != nil {
		t.Fatalf("LoadReflector(\"\") error = %v", err)
	}
	if cfg.MinAgeSeconds != 30 {
		t.Errorf("expected default MinAgeSeconds 30, got %d", cfg.MinAgeSeconds)
	}
	if cfg.SkipRsyncCheckMode != "warn" {
		t.Errorf("expected default skip-rsync-check mode 'warn', got %q", cfg.SkipRsyncCheckMode)
	}
}

func TestLoadReflector_OverlaysJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflector.json")
	body := `{"min_age_seconds": 99, "destinations": [{"name": "d1", "user": "u", "host": "h", "path": "/p"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadReflector(path)
	if err != nil {
		t.Fatalf("LoadReflector() error = %v", err)
	}
	if cfg.MinAgeSeconds != 99 {
		t.Errorf("expected overridden MinAgeSeconds 99, got %d", cfg.MinAgeSeconds)
	}
	if cfg.LocalMaxUsedPercent != 80 {
		t.Errorf("expected default LocalMaxUsedPercent to survive overlay, got %v", cfg.LocalMaxUsedPercent)
	}
	if len(cfg.Destinations) != 1 || cfg.Destinations[0].Name != "d1" {
		t.Errorf("unexpected destinations: %+v", cfg.Destinations)
	}
}

func TestLoadIngester_DefaultsOnly(t *testing.T) {
	cfg, err := LoadIngester("")
	if err != nil {
		t.Fatalf("LoadIngester(\"\") error = %v", err)
	}
	if cfg.ClickHouseDatabase != "wsprdaemon" {
		t.Errorf("expected default database 'wsprdaemon', got %q", cfg.ClickHouseDatabase)
	}
	if cfg.MaxSpotsPerInsert != 50_000 {
		t.Errorf("expected default MaxSpotsPerInsert 50000, got %d", cfg.MaxSpotsPerInsert)
	}
}

func TestLoadBatchLoaderDefaults_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchloader.yaml")
	body := "batch_size: 5000\nstate_file: /tmp/custom_state.json\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadBatchLoaderDefaults(path)
	if err != nil {
		t.Fatalf("LoadBatchLoaderDefaults() error = %v", err)
	}
	if cfg.BatchSize != 5000 {
		t.Errorf("expected overridden BatchSize 5000, got %d", cfg.BatchSize)
	}
	if cfg.StateFile != "/tmp/custom_state.json" {
		t.Errorf("expected overridden StateFile, got %q", cfg.StateFile)
	}
	if cfg.SpotsTable != "spots" {
		t.Errorf("expected default SpotsTable to survive overlay, got %q", cfg.SpotsTable)
	}
}

func TestLoadReflector_MissingFileErrors(t *testing.T) {
	_, err := LoadReflector(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

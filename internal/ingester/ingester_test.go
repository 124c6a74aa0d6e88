package ingester

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rrobinett/wsprdaemon-server/internal/chstore"
	"github.com/rrobinett/wsprdaemon-server/internal/config"
	"github.com/rrobinett/wsprdaemon-server/internal/logging"
	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
)

func init() {
	metrics.InitIngester()
}

func writeTestTbz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	if _, err := exec.LookPath("bzip2"); err != nil {
		t.Skip("bzip2 binary not available to build test fixtures")
	}

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}

	cmd := exec.Command("bzip2", "-c")
	cmd.Stdin = &tarBuf
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("bzip2: %v", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestIngester_Cycle_ProcessesBundleAndDeletesSource(t *testing.T) {
	incoming := t.TempDir()
	bundlePath := filepath.Join(incoming, "sample.tbz")
	writeTestTbz(t, bundlePath, map[string]string{
		"uploads_config.txt":                                               "CLIENT_VERSION=3.1.0\n",
		"wsprdaemon/spots/AC0G=ND_EN16ov/KA9Q_DXE/20/260101_0102_spots.txt": sampleSpotLine() + "\n",
		"wsprdaemon/noise/AC0G=ND_EN16ov/KA9Q_DXE/20/260101_0102_noise.txt": noiseBodyFixture(),
	})

	cfg := config.Ingester{
		IncomingTbzDirs:      []string{incoming},
		ProcessedTbzFile:     filepath.Join(t.TempDir(), "processed.txt"),
		MaxProcessedFileSize: 1_000_000,
		MaxSpotsPerInsert:    50_000,
		MaxNoisePerInsert:    50_000,
	}
	store := chstore.NewFake()
	ig := New(cfg, store, logging.New(2), false)

	if err := ig.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}

	if len(store.Spots) != 1 {
		t.Errorf("expected 1 spot inserted, got %d", len(store.Spots))
	}
	if len(store.Noise) != 1 {
		t.Errorf("expected 1 noise record inserted, got %d", len(store.Noise))
	}
	if _, err := os.Stat(bundlePath); !os.IsNotExist(err) {
		t.Error("expected source bundle to be deleted after successful processing")
	}

	memo, err := LoadMemo(cfg.ProcessedTbzFile)
	if err != nil {
		t.Fatalf("LoadMemo() error = %v", err)
	}
	if !memo.Contains(bundlePath) {
		t.Error("expected bundle path to be recorded in the processed memo")
	}
}

func TestIngester_Cycle_RemovesZombies(t *testing.T) {
	incoming := t.TempDir()
	bundlePath := filepath.Join(incoming, "zombie.tbz")
	if err := os.WriteFile(bundlePath, []byte("not a real tbz"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	processedFile := filepath.Join(t.TempDir(), "processed.txt")
	if err := os.WriteFile(processedFile, []byte(bundlePath+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := config.Ingester{
		IncomingTbzDirs:  []string{incoming},
		ProcessedTbzFile: processedFile,
	}
	store := chstore.NewFake()
	ig := New(cfg, store, logging.New(0), false)

	if err := ig.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}

	if _, err := os.Stat(bundlePath); !os.IsNotExist(err) {
		t.Error("expected zombie bundle to be deleted")
	}
	if len(store.Spots) != 0 || len(store.Noise) != 0 {
		t.Error("expected no inserts for a zombie-only cycle")
	}
}

func TestIngester_Cycle_DryRunDoesNotInsertOrDelete(t *testing.T) {
	incoming := t.TempDir()
	bundlePath := filepath.Join(incoming, "sample.tbz")
	writeTestTbz(t, bundlePath, map[string]string{
		"wsprdaemon/spots/AC0G=ND_EN16ov/KA9Q_DXE/20/260101_0102_spots.txt": sampleSpotLine() + "\n",
	})

	cfg := config.Ingester{
		IncomingTbzDirs:      []string{incoming},
		ProcessedTbzFile:     filepath.Join(t.TempDir(), "processed.txt"),
		MaxProcessedFileSize: 1_000_000,
		MaxSpotsPerInsert:    50_000,
	}
	store := chstore.NewFake()
	ig := New(cfg, store, logging.New(0), true)

	if err := ig.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}

	if len(store.Spots) != 0 {
		t.Error("expected no inserts in dry-run mode")
	}
	if _, err := os.Stat(bundlePath); err != nil {
		t.Error("expected source bundle to survive dry-run")
	}
}

func noiseBodyFixture() string {
	fields := make15("-90.5", "-88.2")
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += " "
		}
		out += f
	}
	return out + "\n"
}

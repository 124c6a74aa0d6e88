package reflector

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rrobinett/wsprdaemon-server/internal/inodecache"
)

func requireTarBzip2(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar binary not available")
	}
	if _, err := exec.LookPath("bzip2"); err != nil {
		t.Skip("bzip2 binary not available")
	}
}

func buildValidTbz(t *testing.T, dir string) string {
	t.Helper()
	srcDir := filepath.Join(dir, "payload")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "file.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tarPath := filepath.Join(dir, "bundle.tar")
	cmd := exec.Command("tar", "cf", tarPath, "-C", dir, "payload")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("tar cf: %v: %s", err, out)
	}
	cmd = exec.Command("bzip2", "-f", tarPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("bzip2: %v: %s", err, out)
	}
	return tarPath + ".bz2"
}

func TestValidate_ValidArchive(t *testing.T) {
	requireTarBzip2(t)
	dir := t.TempDir()
	path := buildValidTbz(t, dir)

	outcome := Validate(path, 5*time.Second)
	if outcome.Status != inodecache.Valid {
		t.Fatalf("expected Valid, got %v (reason: %s)", outcome.Status, outcome.Reason)
	}
}

func TestValidate_CorruptArchive(t *testing.T) {
	requireTarBzip2(t)
	dir := t.TempDir()
	path := buildValidTbz(t, dir)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	truncated := data[:len(data)/2]
	if err := os.WriteFile(path, truncated, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	outcome := Validate(path, 5*time.Second)
	if outcome.Status == inodecache.Valid {
		t.Fatalf("expected a truncated archive to fail validation, got Valid")
	}
}

func TestValidate_MissingFileIsInconclusive(t *testing.T) {
	requireTarBzip2(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.tbz")

	outcome := Validate(path, 5*time.Second)
	if outcome.Status != inodecache.Inconclusive {
		t.Fatalf("expected Inconclusive for a missing file, got %v", outcome.Status)
	}
}

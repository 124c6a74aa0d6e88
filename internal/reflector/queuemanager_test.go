package reflector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
)

func init() {
	metrics.InitReflector()
}

func TestPurgeLargestQueue_RemovesOldestFromBiggestQueue(t *testing.T) {
	base := t.TempDir()
	small := filepath.Join(base, "small")
	big := filepath.Join(base, "big")
	if err := os.MkdirAll(small, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.MkdirAll(big, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	writeAged(t, filepath.Join(small, "a.tbz"), 0)
	now := time.Now()
	for i, name := range []string{"old1.tbz", "old2.tbz", "newest.tbz"} {
		path := filepath.Join(big, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		mtime := now.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("Chtimes: %v", err)
		}
	}

	qm := &QueueManager{QueueBaseDir: base, PurgeBatch: 2}
	qm.PurgeLargestQueue()

	if _, err := os.Stat(filepath.Join(big, "old1.tbz")); !os.IsNotExist(err) {
		t.Error("expected oldest file in the biggest queue to be purged")
	}
	if _, err := os.Stat(filepath.Join(big, "old2.tbz")); !os.IsNotExist(err) {
		t.Error("expected second-oldest file in the biggest queue to be purged")
	}
	if _, err := os.Stat(filepath.Join(big, "newest.tbz")); err != nil {
		t.Error("expected newest file in the biggest queue to survive")
	}
	if _, err := os.Stat(filepath.Join(small, "a.tbz")); err != nil {
		t.Error("expected the smaller queue to be untouched")
	}
}

func TestPurgeLargestQueue_NoQueuesIsNoop(t *testing.T) {
	qm := &QueueManager{QueueBaseDir: t.TempDir(), PurgeBatch: 5}
	qm.PurgeLargestQueue() // must not panic
}

func writeAged(t *testing.T, path string, ageHours int) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	mtime := time.Now().Add(-time.Duration(ageHours) * time.Hour)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

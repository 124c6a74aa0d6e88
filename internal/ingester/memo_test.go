package ingester

import (
	"path/filepath"
	"testing"
)

func TestLoadMemo_MissingFile(t *testing.T) {
	m, err := LoadMemo(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	if err != nil {
		t.Fatalf("LoadMemo() error = %v", err)
	}
	if m.Contains("anything") {
		t.Error("expected empty memo to contain nothing")
	}
}

func TestMemo_MarkAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.txt")
	m, err := LoadMemo(path)
	if err != nil {
		t.Fatalf("LoadMemo() error = %v", err)
	}

	if err := m.MarkProcessed("/incoming/a.tbz", 1_000_000); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if !m.Contains("/incoming/a.tbz") {
		t.Error("expected in-memory memo to contain just-marked path")
	}

	reloaded, err := LoadMemo(path)
	if err != nil {
		t.Fatalf("LoadMemo() reload error = %v", err)
	}
	if !reloaded.Contains("/incoming/a.tbz") {
		t.Error("expected reloaded memo to contain persisted path")
	}
}

func TestMemo_TruncatesWhenOversized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.txt")
	m, err := LoadMemo(path)
	if err != nil {
		t.Fatalf("LoadMemo() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		if err := m.MarkProcessed(longPath(i), 200); err != nil {
			t.Fatalf("MarkProcessed(%d) error = %v", i, err)
		}
	}

	reloaded, err := LoadMemo(path)
	if err != nil {
		t.Fatalf("LoadMemo() error = %v", err)
	}
	if reloaded.Contains(longPath(0)) {
		t.Error("expected oldest entry to have been truncated away")
	}
	if !reloaded.Contains(longPath(19)) {
		t.Error("expected newest entry to survive truncation")
	}
}

func longPath(i int) string {
	return "/incoming/some/deeply/nested/path/bundle-" + itoa(i) + ".tbz"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

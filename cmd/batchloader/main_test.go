package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverTars_SortsDirAndAppendsSingleFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.tar", "a.tar", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	extra := filepath.Join(t.TempDir(), "extra.tar")
	if err := os.WriteFile(extra, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := discoverTars(dir, extra)
	if err != nil {
		t.Fatalf("discoverTars() error = %v", err)
	}

	want := []string{filepath.Join(dir, "a.tar"), filepath.Join(dir, "b.tar"), extra}
	if len(got) != len(want) {
		t.Fatalf("expected %d paths, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("path %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiscoverTars_EmptyWhenNeitherFlagSet(t *testing.T) {
	got, err := discoverTars("", "")
	if err != nil {
		t.Fatalf("discoverTars() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no paths, got %v", got)
	}
}

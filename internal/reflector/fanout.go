package reflector

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// FanOutResult records, per destination name, whether the bundle is now
// present in that destination's queue.
type FanOutResult map[string]error

// AllSucceeded reports whether every destination accepted the bundle.
func (r FanOutResult) AllSucceeded() bool {
	for _, err := range r {
		if err != nil {
			return false
		}
	}
	return true
}

// FanOut places srcPath into every destination's queue directory under
// queueBase, short-circuiting destinations where the target already exists
// (idempotent retry), hard-linking when source and destination share a
// filesystem, and falling back to copy-to-temp+rename otherwise
// (SPEC_FULL.md §4.1 step 4). onENOSPC is invoked synchronously the moment a
// no-space error is observed, so the caller can trigger an immediate queue
// purge before continuing with the remaining destinations.
func FanOut(srcPath, queueBase string, destinations []string, onENOSPC func()) FanOutResult {
	result := make(FanOutResult, len(destinations))
	filename := filepath.Base(srcPath)

	for _, dest := range destinations {
		target := filepath.Join(queueBase, dest, filename)

		if _, err := os.Stat(target); err == nil {
			result[dest] = nil
			continue
		}

		if err := os.MkdirAll(filepath.Join(queueBase, dest), 0o755); err != nil {
			result[dest] = fmt.Errorf("mkdir queue dir: %w", err)
			continue
		}

		err := placeFile(srcPath, target)
		if errors.Is(err, syscall.ENOSPC) && onENOSPC != nil {
			onENOSPC()
		}
		result[dest] = err
	}
	return result
}

// placeFile hard-links srcPath to target when they share a filesystem
// (st_dev match), else copies through a dotfile temp name and renames.
func placeFile(srcPath, target string) error {
	if sameFilesystem(srcPath, filepath.Dir(target)) {
		if err := os.Link(srcPath, target); err == nil {
			return nil
		}
		// Fall through to copy on any link failure (e.g. cross-device races).
	}
	return copyThenRename(srcPath, target)
}

func copyThenRename(srcPath, target string) error {
	tmp := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".tmp")

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func sameFilesystem(a, bDir string) bool {
	var statA, statB syscall.Stat_t
	if err := syscall.Stat(a, &statA); err != nil {
		return false
	}
	if err := syscall.Stat(bDir, &statB); err != nil {
		return false
	}
	return statA.Dev == statB.Dev
}

// Package bundle reads the bzip2-compressed tar ("tbz") archives uploaded by
// wsprdaemon clients, and the tar-of-tbz archives used for batch backfill.
//
// wsprdaemon bundles nest a fixed directory layout under wsprdaemon/spots and
// wsprdaemon/noise; callers walk the returned entries themselves rather than
// this package imposing any interpretation of path segments (SPEC_FULL.md §3).
package bundle

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Entry is one regular file extracted from a tbz archive, held in memory.
type Entry struct {
	Path string // path within the archive, e.g. "wsprdaemon/spots/.../x_spots.txt"
	Data []byte
}

// ReadAll decompresses and untars r, returning every regular file entry.
// Used by BatchLoader, which never touches disk for the inner tbz body.
func ReadAll(r io.Reader) ([]Entry, error) {
	tr := tar.NewReader(bzip2.NewReader(r))
	var entries []Entry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("bundle: read %s: %w", hdr.Name, err)
		}
		entries = append(entries, Entry{Path: hdr.Name, Data: data})
	}
	return entries, nil
}

// ReadAllFile opens path and delegates to ReadAll, so path must be a single
// bzip2-compressed tbz. Plain (uncompressed) outer tars holding .tbz members
// are read with OuterTarEntries instead.
func ReadAllFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(f)
}

// ExtractToDir decompresses and untars r into dir, writing regular files to
// disk and creating parent directories as needed. Used by the Ingester,
// which extracts each incoming bundle to a scratch directory before parsing.
func ExtractToDir(r io.Reader, dir string) error {
	tr := tar.NewReader(bzip2.NewReader(r))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("bundle: read tar: %w", err)
		}
		target := filepath.Join(dir, filepath.Clean(hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("bundle: write %s: %w", target, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}

// ExtractFileToDir opens path and delegates to ExtractToDir.
func ExtractFileToDir(path, dir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ExtractToDir(f, dir)
}

// OuterTarEntries walks a plain (uncompressed) outer tar whose members are
// whole .tbz files, invoking fn with each member's name and its bytes. Used
// by the BatchLoader to process archival tars-of-tbz without ever writing
// the outer tar's contents to disk.
func OuterTarEntries(r io.Reader, fn func(name string, body []byte) error) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("bundle: read outer tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || filepath.Ext(hdr.Name) != ".tbz" {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return fmt.Errorf("bundle: read member %s: %w", hdr.Name, err)
		}
		if err := fn(hdr.Name, buf.Bytes()); err != nil {
			return err
		}
	}
}

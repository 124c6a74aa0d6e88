// Package checkpoint implements the BatchLoader's resumable JSON state file.
//
// A State records which outer tar-of-tbz archives have already been fully
// consumed so that --reset aside, restarting the batch loader skips
// completed tars and resumes running totals rather than reprocessing from
// scratch. A tar interrupted mid-way by --limit is never recorded as
// complete (SPEC_FULL.md §4.3).
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State is the on-disk shape of the batch loader's checkpoint file.
type State struct {
	CompletedTars []string `json:"completed_tars"`
	TotalSpots    int64    `json:"total_spots"`
	TotalNoise    int64    `json:"total_noise"`
	TotalTbz      int64    `json:"total_tbz"`
	LastUpdated   string   `json:"last_updated"`
}

// IsCompleted reports whether tarPath has already been fully consumed.
func (s *State) IsCompleted(tarPath string) bool {
	for _, t := range s.CompletedTars {
		if t == tarPath {
			return true
		}
	}
	return false
}

// Manager persists State to a single JSON file via atomic tmpfile+rename.
type Manager struct {
	path string
}

// NewManager creates a checkpoint manager rooted at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads the state file. A missing file is not an error: it returns a
// zero-value State, which --reset also produces by deleting the file first.
func (m *Manager) Load() (*State, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", m.path, err)
	}
	return &st, nil
}

// Save persists st atomically (temp file + rename within the same directory).
func (m *Manager) Save(st *State) error {
	dir := filepath.Dir(m.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint temp: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Reset deletes the checkpoint file, implementing the --reset CLI flag.
func (m *Manager) Reset() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// Package batchloader bulk-loads archival tar-of-tbz files directly into
// ClickHouse staging tables, without ever extracting to disk: each inner tbz
// is read fully into memory from the outer tar, parsed, and accumulated into
// large cross-bundle batches flushed on overflow (SPEC_FULL.md §4.3
// "BatchLoader variant").
package batchloader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rrobinett/wsprdaemon-server/internal/batch"
	"github.com/rrobinett/wsprdaemon-server/internal/checkpoint"
	"github.com/rrobinett/wsprdaemon-server/internal/chstore"
	"github.com/rrobinett/wsprdaemon-server/internal/ingester"
	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
	"github.com/rrobinett/wsprdaemon-server/internal/retry"
	"github.com/rrobinett/wsprdaemon-server/pkg/bundle"
	"github.com/rrobinett/wsprdaemon-server/pkg/record"
)

// Config holds the BatchLoader's run parameters, assembled from CLI flags
// layered over config.BatchLoaderDefaults.
type Config struct {
	BatchSize int
	Limit     int // stop after this many inner tbz files; 0 = unlimited
	DryRun    bool
	Reset     bool
}

// Loader drives one or more outer tar files through the BatchLoader pipeline.
type Loader struct {
	Cfg        Config
	Store      chstore.Store
	Checkpoint *checkpoint.Manager
	Log        *slog.Logger

	state    *checkpoint.State
	tbzSeen  int
	limitHit bool
	spotsBuf *batch.Accumulator[record.Spot]
	noiseBuf *batch.Accumulator[record.Noise]
}

// NewLoader constructs a Loader and loads (or resets) its checkpoint state.
func NewLoader(cfg Config, store chstore.Store, cp *checkpoint.Manager, log *slog.Logger) (*Loader, error) {
	l := &Loader{
		Cfg:        cfg,
		Store:      store,
		Checkpoint: cp,
		Log:        log,
		spotsBuf:   batch.NewAccumulator[record.Spot](cfg.BatchSize),
		noiseBuf:   batch.NewAccumulator[record.Noise](cfg.BatchSize),
	}

	if cfg.Reset {
		if err := cp.Reset(); err != nil {
			return nil, fmt.Errorf("batchloader: reset checkpoint: %w", err)
		}
		l.state = &checkpoint.State{}
		return l, nil
	}

	st, err := cp.Load()
	if err != nil {
		return nil, fmt.Errorf("batchloader: load checkpoint: %w", err)
	}
	l.state = st
	return l, nil
}

// Run processes every tarPath in order, skipping those already recorded
// complete, saving the checkpoint after each tar (or immediately on --limit).
func (l *Loader) Run(ctx context.Context, tarPaths []string) error {
	for _, tarPath := range tarPaths {
		if l.state.IsCompleted(tarPath) {
			l.Log.Info("batchloader.tar.skip_completed", "tar", tarPath)
			continue
		}
		if err := l.processTar(ctx, tarPath); err != nil {
			return fmt.Errorf("batchloader: %s: %w", tarPath, err)
		}
		if l.limitHit {
			break
		}
	}
	return nil
}

func (l *Loader) processTar(ctx context.Context, tarPath string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	l.Log.Info("batchloader.tar.start", "tar", tarPath)
	tarTbz, tarSpots, tarNoise := 0, 0, 0

	err = bundle.OuterTarEntries(f, func(name string, body []byte) error {
		if l.Cfg.Limit > 0 && l.tbzSeen+1 > l.Cfg.Limit {
			l.limitHit = true
			return errStop
		}

		spots, noise, perr := ParseTbzBytes(body)
		if perr != nil {
			l.Log.Warn("batchloader.tbz.parse_failed", "member", name, "error", perr)
			return nil
		}
		tarTbz++
		l.tbzSeen++
		tarSpots += len(spots)
		tarNoise += len(noise)

		if full, ok := l.spotsBuf.Add(spots...); ok {
			if err := l.flushSpots(ctx, full); err != nil {
				return err
			}
		}
		if full, ok := l.noiseBuf.Add(noise...); ok {
			if err := l.flushNoise(ctx, full); err != nil {
				return err
			}
		}

		if l.Cfg.Limit > 0 && l.tbzSeen >= l.Cfg.Limit {
			l.limitHit = true
			return errStop
		}
		return nil
	})
	if err != nil && err != errStop {
		return err
	}

	if rem := l.spotsBuf.Flush(); len(rem) > 0 {
		if err := l.flushSpots(ctx, rem); err != nil {
			return err
		}
	}
	if rem := l.noiseBuf.Flush(); len(rem) > 0 {
		if err := l.flushNoise(ctx, rem); err != nil {
			return err
		}
	}

	l.state.TotalSpots += int64(tarSpots)
	l.state.TotalNoise += int64(tarNoise)
	l.state.TotalTbz += int64(tarTbz)
	l.state.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	if !l.limitHit {
		l.state.CompletedTars = append(l.state.CompletedTars, tarPath)
	}
	if err := l.Checkpoint.Save(l.state); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	l.Log.Info("batchloader.tar.done", "tar", tarPath, "tbz", tarTbz, "spots", tarSpots, "noise", tarNoise)
	return nil
}

var errStop = fmt.Errorf("batchloader: limit reached")

func (l *Loader) flushSpots(ctx context.Context, spots []record.Spot) error {
	if l.Cfg.DryRun {
		l.Log.Info("batchloader.dry_run.spots", "count", len(spots))
		return nil
	}
	metrics.Ingester.InsertAttempts.Inc()
	return retry.Do(ctx, func() error { return l.Store.InsertSpots(ctx, spots) },
		func(attempt int, err error, wait time.Duration) {
			metrics.Ingester.InsertRetries.Inc()
			l.Log.Warn("batchloader.insert.retry", "kind", "spots", "attempt", attempt, "error", err, "wait", wait)
		})
}

func (l *Loader) flushNoise(ctx context.Context, noise []record.Noise) error {
	if l.Cfg.DryRun {
		l.Log.Info("batchloader.dry_run.noise", "count", len(noise))
		return nil
	}
	metrics.Ingester.InsertAttempts.Inc()
	return retry.Do(ctx, func() error { return l.Store.InsertNoise(ctx, noise) },
		func(attempt int, err error, wait time.Duration) {
			metrics.Ingester.InsertRetries.Inc()
			l.Log.Warn("batchloader.insert.retry", "kind", "noise", "attempt", attempt, "error", err, "wait", wait)
		})
}

// ParseTbzBytes parses one inner tbz archive's bytes entirely in memory,
// returning the spot and noise records it contains. Unlike the Ingester's
// disk-based extraction, nothing is written to disk here.
func ParseTbzBytes(data []byte) ([]record.Spot, []record.Noise, error) {
	entries, err := bundle.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}

	var version *string
	for _, e := range entries {
		if strings.Contains(e.Path, "uploads_config.txt") {
			for _, line := range strings.Split(string(e.Data), "\n") {
				line = strings.TrimSpace(line)
				if rest, ok := strings.CutPrefix(line, "CLIENT_VERSION="); ok {
					v := strings.Trim(rest, `"'`)
					version = &v
					break
				}
			}
			break
		}
	}

	var spots []record.Spot
	var noise []record.Noise

	for _, e := range entries {
		segs := strings.Split(path.Clean(e.Path), "/")
		name := segs[len(segs)-1]

		switch {
		case strings.HasSuffix(name, "_spots.txt"):
			idx := indexOfAny(segs, "spots")
			if idx < 0 || len(segs)-idx < 5 {
				continue
			}
			rxSiteDir, rxID, bandStr := segs[idx+1], segs[idx+2], segs[idx+3]
			rxSignDir, rxGridDir := ingester.DecodeRxSiteDir(rxSiteDir)
			spots = append(spots, ingester.ParseSpotLines(bytes.NewReader(e.Data), bandStr, rxID, rxSignDir, rxGridDir, version)...)

		case strings.HasSuffix(name, "_noise.txt"):
			idx := indexOfAny(segs, "noise")
			if idx < 0 || len(segs)-idx < 5 {
				continue
			}
			rxSiteDir, rxID, bandStr := segs[idx+1], segs[idx+2], segs[idx+3]
			rxSignDir, rxGridDir := ingester.DecodeRxSiteDir(rxSiteDir)
			ts, ok := ingester.ParseNoiseFilename(name)
			if !ok {
				continue
			}
			rms, c2, ov, ok := ingester.ParseNoiseBody(string(e.Data))
			if !ok {
				continue
			}
			noise = append(noise, ingester.BuildNoiseRecord(ts, rxSignDir, rxID, rxGridDir, bandStr, rms, c2, ov))
		}
	}

	return spots, noise, nil
}

func indexOfAny(segs []string, name string) int {
	for i, s := range segs {
		if s == name {
			return i
		}
	}
	return -1
}

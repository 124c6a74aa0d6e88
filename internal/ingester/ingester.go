// Package ingester drains incoming directories of wsprdaemon bundles into
// the analytic store: extract, parse, insert with retry, memo, delete
// (SPEC_FULL.md §4.3).
package ingester

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rrobinett/wsprdaemon-server/internal/chstore"
	"github.com/rrobinett/wsprdaemon-server/internal/config"
	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
	"github.com/rrobinett/wsprdaemon-server/internal/retry"
	"github.com/rrobinett/wsprdaemon-server/pkg/bundle"
	"github.com/rrobinett/wsprdaemon-server/pkg/record"
)

// Ingester owns one drain/extract/parse/insert/mark/delete loop over a set
// of incoming directories.
type Ingester struct {
	Config config.Ingester
	Store  chstore.Store
	Log    *slog.Logger
	DryRun bool
}

// New constructs an Ingester.
func New(cfg config.Ingester, store chstore.Store, log *slog.Logger, dryRun bool) *Ingester {
	return &Ingester{Config: cfg, Store: store, Log: log, DryRun: dryRun}
}

// Run executes cycles until ctx is cancelled. If loopInterval is 0, it
// performs exactly one cycle and returns (single-shot CLI mode).
func (ig *Ingester) Run(ctx context.Context, loopInterval time.Duration) error {
	for {
		if err := ig.Cycle(ctx); err != nil {
			ig.Log.Error("ingester.cycle.error", "error", err)
		}
		if loopInterval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(loopInterval):
		}
	}
}

// Cycle runs a single discover/filter/zombie-cleanup/process pass.
func (ig *Ingester) Cycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.Ingester.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	files, err := findTbzFiles(ig.Config.IncomingTbzDirs)
	if err != nil {
		return fmt.Errorf("ingester: discover: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	memo, err := LoadMemo(ig.Config.ProcessedTbzFile)
	if err != nil {
		return fmt.Errorf("ingester: load memo: %w", err)
	}

	var unprocessed []string
	for _, f := range files {
		if memo.Contains(f) {
			if err := os.Remove(f); err != nil {
				ig.Log.Warn("ingester.zombie.unlink_failed", "file", f, "error", err)
				continue
			}
			metrics.Ingester.ZombiesRemoved.Inc()
			ig.Log.Debug("ingester.zombie.removed", "file", f)
			continue
		}
		unprocessed = append(unprocessed, f)
	}

	for _, f := range unprocessed {
		if err := ig.processOne(ctx, f, memo); err != nil {
			ig.Log.Warn("ingester.bundle.skipped", "file", f, "error", err)
		}
	}
	return nil
}

func (ig *Ingester) processOne(ctx context.Context, tbzPath string, memo *Memo) error {
	scratch, err := os.MkdirTemp("", "ingester-extract-*")
	if err != nil {
		return fmt.Errorf("mkdtemp: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := bundle.ExtractFileToDir(tbzPath, scratch); err != nil {
		metrics.Ingester.BundlesSkipped.Inc()
		if rmErr := os.Remove(tbzPath); rmErr != nil {
			return fmt.Errorf("extract failed (%w) and could not delete corrupt file: %v", err, rmErr)
		}
		return fmt.Errorf("extract failed, deleted corrupt bundle: %w", err)
	}

	version := readClientVersion(scratch)

	spots := collectSpots(scratch, version)
	metrics.Ingester.SpotsParsed.Add(float64(len(spots)))
	if len(spots) > 0 && !ig.DryRun {
		if err := ig.insertSpots(ctx, spots); err != nil {
			return fmt.Errorf("insert spots: %w", err)
		}
	}

	noise := collectNoise(scratch)
	metrics.Ingester.NoiseParsed.Add(float64(len(noise)))
	if len(noise) > 0 && !ig.DryRun {
		if err := ig.insertNoise(ctx, noise); err != nil {
			return fmt.Errorf("insert noise: %w", err)
		}
	}

	if ig.DryRun {
		return nil
	}

	if err := memo.MarkProcessed(tbzPath, ig.Config.MaxProcessedFileSize); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if err := os.Remove(tbzPath); err != nil {
		ig.Log.Warn("ingester.bundle.delete_failed", "file", tbzPath, "error", err)
	}
	metrics.Ingester.BundlesProcessed.Inc()
	return nil
}

func (ig *Ingester) insertSpots(ctx context.Context, spots []record.Spot) error {
	batches := splitSpots(spots, ig.Config.MaxSpotsPerInsert)
	for _, b := range batches {
		metrics.Ingester.InsertAttempts.Inc()
		start := time.Now()
		err := retry.Do(ctx, func() error { return ig.Store.InsertSpots(ctx, b) },
			func(attempt int, err error, wait time.Duration) {
				metrics.Ingester.InsertRetries.Inc()
				ig.Log.Warn("ingester.insert.retry", "kind", "spots", "attempt", attempt, "error", err, "wait", wait)
			})
		metrics.Ingester.InsertDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.Ingester.InsertFailures.Inc()
			return err
		}
	}
	return nil
}

func (ig *Ingester) insertNoise(ctx context.Context, noise []record.Noise) error {
	batches := splitNoise(noise, ig.Config.MaxNoisePerInsert)
	for _, b := range batches {
		metrics.Ingester.InsertAttempts.Inc()
		start := time.Now()
		err := retry.Do(ctx, func() error { return ig.Store.InsertNoise(ctx, b) },
			func(attempt int, err error, wait time.Duration) {
				metrics.Ingester.InsertRetries.Inc()
				ig.Log.Warn("ingester.insert.retry", "kind", "noise", "attempt", attempt, "error", err, "wait", wait)
			})
		metrics.Ingester.InsertDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.Ingester.InsertFailures.Inc()
			return err
		}
	}
	return nil
}

func splitSpots(items []record.Spot, size int) [][]record.Spot {
	if size <= 0 {
		return [][]record.Spot{items}
	}
	var out [][]record.Spot
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func splitNoise(items []record.Noise, size int) [][]record.Noise {
	if size <= 0 {
		return [][]record.Noise{items}
	}
	var out [][]record.Noise
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func findTbzFiles(dirs []string) ([]string, error) {
	var out []string
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.tbz"))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

// readClientVersion extracts CLIENT_VERSION from uploads_config.txt, nil if
// absent. RUNNING_JOBS/RECEIVER_DESCRIPTIONS in the same file carry no
// column in the analytic store and are not read.
func readClientVersion(scratch string) *string {
	data, err := os.ReadFile(filepath.Join(scratch, "uploads_config.txt"))
	if err != nil {
		return nil
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "CLIENT_VERSION="); ok {
			v := strings.Trim(rest, `"'`)
			return &v
		}
	}
	return nil
}

func collectSpots(scratch string, version *string) []record.Spot {
	spotsRoot := filepath.Join(scratch, "wsprdaemon", "spots")
	var all []record.Spot
	walkBundleFiles(spotsRoot, "_spots.txt", func(rxSiteDir, rxID, bandStr, path string) {
		rxSignDir, rxGridDir := DecodeRxSiteDir(rxSiteDir)
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close()
		all = append(all, ParseSpotLines(f, bandStr, rxID, rxSignDir, rxGridDir, version)...)
	})
	return all
}

func collectNoise(scratch string) []record.Noise {
	noiseRoot := filepath.Join(scratch, "wsprdaemon", "noise")
	var all []record.Noise
	walkBundleFiles(noiseRoot, "_noise.txt", func(rxSiteDir, rxID, bandStr, path string) {
		rxSignDir, rxGridDir := DecodeRxSiteDir(rxSiteDir)
		ts, ok := ParseNoiseFilename(filepath.Base(path))
		if !ok {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return
		}
		rms, c2, ov, ok := ParseNoiseBody(string(data))
		if !ok {
			return
		}
		all = append(all, BuildNoiseRecord(ts, rxSignDir, rxID, rxGridDir, bandStr, rms, c2, ov))
	})
	return all
}

// walkBundleFiles walks root/RX_SITE/RECEIVER/BAND/*suffix, invoking fn with
// the three decoded directory segments and the matched file's full path.
func walkBundleFiles(root, suffix string, fn func(rxSiteDir, rxID, bandStr, path string)) {
	rxSiteDirs, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, rxSite := range rxSiteDirs {
		if !rxSite.IsDir() {
			continue
		}
		rxIDDirs, err := os.ReadDir(filepath.Join(root, rxSite.Name()))
		if err != nil {
			continue
		}
		for _, rxID := range rxIDDirs {
			if !rxID.IsDir() {
				continue
			}
			bandDirs, err := os.ReadDir(filepath.Join(root, rxSite.Name(), rxID.Name()))
			if err != nil {
				continue
			}
			for _, band := range bandDirs {
				if !band.IsDir() {
					continue
				}
				bandDir := filepath.Join(root, rxSite.Name(), rxID.Name(), band.Name())
				entries, err := os.ReadDir(bandDir)
				if err != nil {
					continue
				}
				for _, e := range entries {
					if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
						continue
					}
					fn(rxSite.Name(), rxID.Name(), band.Name(), filepath.Join(bandDir, e.Name()))
				}
			}
		}
	}
}

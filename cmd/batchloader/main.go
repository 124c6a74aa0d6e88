// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command batchloader bulk-loads archival tar-of-tbz files directly into
// ClickHouse staging tables without ever extracting to disk
// (SPEC_FULL.md §4.3 "BatchLoader variant").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/rrobinett/wsprdaemon-server/internal/batchloader"
	"github.com/rrobinett/wsprdaemon-server/internal/checkpoint"
	"github.com/rrobinett/wsprdaemon-server/internal/chstore"
	"github.com/rrobinett/wsprdaemon-server/internal/clierr"
	"github.com/rrobinett/wsprdaemon-server/internal/config"
	"github.com/rrobinett/wsprdaemon-server/internal/logging"
	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
	"github.com/rrobinett/wsprdaemon-server/internal/ui"
)

func main() {
	fs := flag.NewFlagSet("batchloader", flag.ExitOnError)
	batchConfigPath := fs.String("config", "", "Path to batchloader YAML defaults file")
	tarDir := fs.String("tar-dir", "", "Directory of outer *.tar archives to process, in sorted order")
	tarFile := fs.String("tar", "", "A single outer tar archive to process")
	chHost := fs.String("clickhouse-host", "localhost", "ClickHouse host")
	chPort := fs.Int("clickhouse-port", 8123, "ClickHouse port")
	chUser := fs.String("clickhouse-user", "", "ClickHouse username (required)")
	chPassword := fs.String("clickhouse-password", "", "ClickHouse password (required)")
	chDatabase := fs.String("db", "wsprdaemon", "ClickHouse database")
	spotsTable := fs.String("spots-table", "", "Destination spots table (overrides --config)")
	noiseTable := fs.String("noise-table", "", "Destination noise table (overrides --config)")
	batchSize := fs.Int("batch-size", 0, "Records accumulated across tbz files before a flush (overrides --config)")
	limit := fs.Int("limit", 0, "Stop after this many inner .tbz files (0 = unlimited)")
	dryRun := fs.Bool("dry-run", false, "Parse and log but never insert")
	stateFile := fs.String("state-file", "", "Checkpoint file path (overrides --config)")
	reset := fs.Bool("reset", false, "Ignore any existing checkpoint and start fresh")
	verbosity := fs.CountP("verbose", "v", "Increase log verbosity (-v, -vv)")
	jsonOutput := fs.Bool("json", false, "Emit fatal errors as JSON")
	noColor := fs.Bool("no-color", false, "Disable colored output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: batchloader [options]

Description:
  Bulk-load one or more outer tar-of-tbz archives directly into ClickHouse
  staging tables. Each inner .tbz is read fully into memory and parsed;
  records accumulate across .tbz files and flush in large batches. Progress
  is checkpointed so a restart resumes after the last fully-completed tar.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  batchloader --tar-dir /archive/2025 --spots-table spots_2025 --noise-table noise_2025
  batchloader --tar /archive/2025/january.tar --limit 100 --dry-run
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	ui.InitColors(*noColor)
	log := logging.New(*verbosity)
	metrics.InitIngester()

	if *chUser == "" || *chPassword == "" {
		clierr.FatalError(clierr.NewConfigError(
			"Missing ClickHouse credentials",
			"--clickhouse-user and --clickhouse-password are both required",
			"Pass both flags",
			nil,
		), *jsonOutput)
	}

	defaults, err := config.LoadBatchLoaderDefaults(*batchConfigPath)
	if err != nil {
		clierr.FatalError(clierr.NewConfigError(
			"Failed to load batchloader configuration",
			err.Error(),
			"Check the --config path and that it contains valid YAML",
			err,
		), *jsonOutput)
	}
	if *spotsTable != "" {
		defaults.SpotsTable = *spotsTable
	}
	if *noiseTable != "" {
		defaults.NoiseTable = *noiseTable
	}
	if *batchSize > 0 {
		defaults.BatchSize = *batchSize
	}
	if *stateFile != "" {
		defaults.StateFile = *stateFile
	}

	tarPaths, err := discoverTars(*tarDir, *tarFile)
	if err != nil {
		clierr.FatalError(clierr.NewInputError(err.Error(), "Could not list --tar-dir", "Check the directory exists and is readable"), *jsonOutput)
	}
	if len(tarPaths) == 0 {
		clierr.FatalError(clierr.NewConfigError(
			"No tar archives to process",
			"Neither --tar-dir nor --tar named any archives",
			"Pass --tar-dir <dir> or --tar <file>",
			nil,
		), *jsonOutput)
	}

	store, err := chstore.Open(chstore.Config{
		Host:       *chHost,
		Port:       *chPort,
		User:       *chUser,
		Password:   *chPassword,
		Database:   *chDatabase,
		SpotsTable: defaults.SpotsTable,
		NoiseTable: defaults.NoiseTable,
	})
	if err != nil {
		clierr.FatalError(clierr.NewNetworkError(
			"Failed to connect to ClickHouse",
			err.Error(),
			"Check --clickhouse-host/--clickhouse-port and that the server is reachable",
			err,
		), *jsonOutput)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*dryRun {
		if err := store.EnsureSchema(ctx); err != nil {
			clierr.FatalError(clierr.NewSetupError(
				"Failed to ensure ClickHouse schema",
				err.Error(),
				fmt.Sprintf("Check that %s/%s exist or that the user has CREATE TABLE privileges", defaults.SpotsTable, defaults.NoiseTable),
				err,
			), *jsonOutput)
		}
	}

	cp := checkpoint.NewManager(defaults.StateFile)
	loader, err := batchloader.NewLoader(batchloader.Config{
		BatchSize: defaults.BatchSize,
		Limit:     *limit,
		DryRun:    *dryRun,
		Reset:     *reset,
	}, store, cp, log)
	if err != nil {
		clierr.FatalError(clierr.NewSetupError(
			"Failed to initialize batchloader",
			err.Error(),
			"Check --state-file is writable",
			err,
		), *jsonOutput)
	}

	ui.Success(fmt.Sprintf("batchloader started: %d tar archive(s)", len(tarPaths)))
	if err := loader.Run(ctx, tarPaths); err != nil {
		clierr.FatalError(clierr.NewInternalError(
			"Batch load failed",
			err.Error(),
			"Check the logs above for the failing archive",
			err,
		), *jsonOutput)
	}
	ui.Success("batchloader finished")
}

// discoverTars resolves the tar archives named by --tar-dir and/or --tar
// into one list: the *.tar files of --tar-dir in sorted order, followed by
// --tar if given. Duplicates are not removed.
func discoverTars(tarDir, tarFile string) ([]string, error) {
	var out []string
	if tarDir != "" {
		entries, err := os.ReadDir(tarDir)
		if err != nil {
			return nil, fmt.Errorf("read --tar-dir %s: %w", tarDir, err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".tar" {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, filepath.Join(tarDir, n))
		}
	}
	if tarFile != "" {
		out = append(out, tarFile)
	}
	return out, nil
}

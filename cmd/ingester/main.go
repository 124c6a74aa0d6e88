// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command ingester drains incoming wsprdaemon .tbz bundles into ClickHouse:
// extract, parse, insert with retry, memo, delete (SPEC_FULL.md §4.3).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rrobinett/wsprdaemon-server/internal/chstore"
	"github.com/rrobinett/wsprdaemon-server/internal/clierr"
	"github.com/rrobinett/wsprdaemon-server/internal/config"
	"github.com/rrobinett/wsprdaemon-server/internal/ingester"
	"github.com/rrobinett/wsprdaemon-server/internal/logging"
	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
	"github.com/rrobinett/wsprdaemon-server/internal/ui"
)

func main() {
	fs := flag.NewFlagSet("ingester", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to ingester JSON config file")
	chUser := fs.String("clickhouse-user", "", "ClickHouse username (required)")
	chPassword := fs.String("clickhouse-password", "", "ClickHouse password (required)")
	incomingDirs := fs.String("incoming-dirs", "", "Comma-delimited list of directories to scan for .tbz bundles")
	loopSeconds := fs.Int("loop", 0, "Re-run every SECONDS instead of exiting after one cycle")
	dryRun := fs.Bool("dry-run", false, "Parse and log without inserting; parsed bundles are neither memoized nor deleted (zombies and unextractable bundles are still removed)")
	setupSystem := fs.Bool("setup-system", false, "Idempotently create extraction/processed-file directories and exit setup steps (no-op if not root)")
	spotsTable := fs.String("spots-table", "", "Override the configured spots table")
	noiseTable := fs.String("noise-table", "", "Override the configured noise table")
	metricsAddr := fs.String("metrics-addr", "", "Address to serve Prometheus metrics on (e.g. :9092); empty disables")
	verbosity := fs.CountP("verbose", "v", "Increase log verbosity (-v, -vv)")
	jsonOutput := fs.Bool("json", false, "Emit fatal errors as JSON")
	noColor := fs.Bool("no-color", false, "Disable colored output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ingester [options]

Description:
  Drain incoming wsprdaemon .tbz bundles into ClickHouse: extract, parse
  spot/noise records, bulk-insert with retry, memoize, and delete. Safe to
  re-run; bundles already recorded in the processed-file memo are unlinked
  without reprocessing.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  ingester --config /etc/wsprdaemon/ingester.json --clickhouse-user wd --clickhouse-password secret
  ingester --incoming-dirs /var/spool/wsprdaemon/queues/clickhouse1,/var/spool/wsprdaemon/queues/clickhouse2 --loop 10
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	ui.InitColors(*noColor)
	log := logging.New(*verbosity)

	if *chUser == "" || *chPassword == "" {
		clierr.FatalError(clierr.NewConfigError(
			"Missing ClickHouse credentials",
			"--clickhouse-user and --clickhouse-password are both required",
			"Pass both flags, or set them in the environment your process manager injects",
			nil,
		), *jsonOutput)
	}

	cfg, err := config.LoadIngester(*configPath)
	if err != nil {
		clierr.FatalError(clierr.NewConfigError(
			"Failed to load ingester configuration",
			err.Error(),
			"Check the --config path and that it contains valid JSON",
			err,
		), *jsonOutput)
	}
	if *incomingDirs != "" {
		cfg.IncomingTbzDirs = strings.Split(*incomingDirs, ",")
	}
	if *spotsTable != "" {
		cfg.ClickHouseSpotsTable = *spotsTable
	}
	if *noiseTable != "" {
		cfg.ClickHouseNoiseTable = *noiseTable
	}
	if len(cfg.IncomingTbzDirs) == 0 {
		clierr.FatalError(clierr.NewConfigError(
			"No incoming directories configured",
			"Neither --incoming-dirs nor a config file entry supplied any directories",
			"Pass --incoming-dirs as a comma-delimited list",
			nil,
		), *jsonOutput)
	}

	if *setupSystem {
		if err := runSetupSystem(cfg); err != nil {
			clierr.FatalError(clierr.NewSetupError(
				"System setup failed",
				err.Error(),
				"Check filesystem permissions on the extraction directory and processed-file path",
				err,
			), *jsonOutput)
		}
		ui.Success("ingester: system setup complete")
		return
	}

	metrics.InitIngester()
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("ingester.metrics.server_failed", "error", err)
			}
		}()
	}

	store, err := chstore.Open(chstore.Config{
		Host:       cfg.ClickHouseHost,
		Port:       cfg.ClickHousePort,
		User:       *chUser,
		Password:   *chPassword,
		Database:   cfg.ClickHouseDatabase,
		SpotsTable: cfg.ClickHouseSpotsTable,
		NoiseTable: cfg.ClickHouseNoiseTable,
	})
	if err != nil {
		clierr.FatalError(clierr.NewNetworkError(
			"Failed to connect to ClickHouse",
			err.Error(),
			"Check --config clickhouse_host/clickhouse_port and that the server is reachable",
			err,
		), *jsonOutput)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.EnsureSchema(ctx); err != nil {
		clierr.FatalError(clierr.NewSetupError(
			"Failed to ensure ClickHouse schema",
			err.Error(),
			"Check that the configured database exists and the user has CREATE TABLE privileges",
			err,
		), *jsonOutput)
	}

	ig := ingester.New(cfg, store, log, *dryRun)

	interval := time.Duration(*loopSeconds) * time.Second

	ui.Success(fmt.Sprintf("ingester started: %d incoming dir(s)", len(cfg.IncomingTbzDirs)))
	if err := ig.Run(ctx, interval); err != nil {
		clierr.FatalError(clierr.NewInternalError(
			"Ingester loop exited with an error",
			err.Error(),
			"Check the logs above for the failing cycle",
			err,
		), *jsonOutput)
	}
}

// runSetupSystem idempotently creates the extraction directory and the
// parent directory of the processed-tbz memo file. A no-op for any
// directory it cannot create due to insufficient privileges, matching the
// reference implementation's "no-op when non-root" note for the steps that
// otherwise touch system paths like /etc/logrotate.d.
func runSetupSystem(cfg config.Ingester) error {
	if cfg.ExtractionDir != "" {
		if err := os.MkdirAll(cfg.ExtractionDir, 0o755); err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return fmt.Errorf("create extraction dir: %w", err)
		}
	}
	if cfg.ProcessedTbzFile != "" {
		if dir := filepath.Dir(cfg.ProcessedTbzFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				if os.IsPermission(err) {
					return nil
				}
				return fmt.Errorf("create processed-file dir: %w", err)
			}
		}
	}
	return nil
}

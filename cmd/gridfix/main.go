// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command gridfix recalculates rx_lat/rx_lon/tx_lat/tx_lon from stored grid
// squares for existing ClickHouse rows and bulk-updates any row whose
// stored coordinate has drifted from the canonical conversion
// (SPEC_FULL.md §4.7).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rrobinett/wsprdaemon-server/internal/clierr"
	"github.com/rrobinett/wsprdaemon-server/internal/gridfix"
	"github.com/rrobinett/wsprdaemon-server/internal/logging"
	"github.com/rrobinett/wsprdaemon-server/internal/output"
	"github.com/rrobinett/wsprdaemon-server/internal/ui"
)

func main() {
	fs := flag.NewFlagSet("gridfix", flag.ExitOnError)
	chHost := fs.String("clickhouse-host", "localhost", "ClickHouse host")
	chPort := fs.Int("clickhouse-port", 8123, "ClickHouse port")
	chUser := fs.String("clickhouse-user", "", "ClickHouse user with write access (required)")
	chPassword := fs.String("clickhouse-password", "", "ClickHouse password (required)")
	database := fs.String("database", "wsprdaemon", "Database holding the target table")
	table := fs.String("table", "spots", "Table to recompute coordinates for")
	pageSize := fs.Uint64("page-size", gridfix.DefaultPageSize, "Rows fetched (and updated) per page")
	tolerance := fs.Float64("tolerance-deg", gridfix.DefaultToleranceDeg, "Drift threshold in degrees below which a row is left untouched")
	limit := fs.Uint64("limit", 0, "Stop after this many rows (0 = no limit)")
	dryRun := fs.Bool("dry-run", false, "Count rows that would be updated without applying changes")
	metricsAddr := fs.String("metrics-addr", "", "Address to serve Prometheus metrics on for the duration of the run; empty disables")
	verbosity := fs.CountP("verbose", "v", "Increase log verbosity (-v, -vv)")
	jsonOutput := fs.Bool("json", false, "Emit fatal errors as JSON")
	noColor := fs.Bool("no-color", false, "Disable colored output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: gridfix [options]

Description:
  Page through a ClickHouse table, recompute rx/tx lat/lon from their grid
  square columns, and bulk-update any row whose stored coordinate has
  drifted past --tolerance-deg. Statements are paged by --page-size to
  bound the size of each ALTER TABLE ... UPDATE.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  gridfix --table spots --dry-run
  gridfix --table spots --page-size 2000
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
			"Pass both flags",
			nil,
		), *jsonOutput)
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("gridfix.metrics.server_failed", "error", err)
			}
		}()
	}

	conn, err := gridfix.Dial(*chHost, *chPort, *chUser, *chPassword, *database)
	if err != nil {
		clierr.FatalError(clierr.NewNetworkError(
			"Failed to connect to ClickHouse",
			err.Error(),
			"Check --clickhouse-host/--clickhouse-port/--clickhouse-user and that the server is reachable",
			err,
		), *jsonOutput)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := gridfix.Options{
		Database:     *database,
		Table:        *table,
		PageSize:     *pageSize,
		ToleranceDeg: *tolerance,
		Limit:        *limit,
		DryRun:       *dryRun,
	}

	ui.Info(fmt.Sprintf("gridfix: scanning %s.%s (page size %d, tolerance %.4f)", *database, *table, opts.PageSize, opts.ToleranceDeg))
	res, err := gridfix.Fix(ctx, conn, opts)
	if err != nil {
		clierr.FatalError(clierr.NewInternalError(
			"gridfix run failed",
			err.Error(),
			"Check the logs above for the failing page",
			err,
		), *jsonOutput)
	}

	log.Info("gridfix.done", "processed", res.Processed, "updated", res.Updated, "errors", res.Errors)

	if *jsonOutput {
		_ = output.JSON(res)
	}

	if res.Errors > 0 {
		ui.Warningf("gridfix: processed %d rows, updated %d, %d row(s) failed to update", res.Processed, res.Updated, res.Errors)
		os.Exit(clierr.ExitConfig)
	}
	if !*jsonOutput {
		ui.Success(fmt.Sprintf("gridfix: processed %d rows, updated %d", res.Processed, res.Updated))
	}
}

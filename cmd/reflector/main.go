// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command reflector runs the upload-directory scanner, per-destination
// rsync workers, and queue manager described in SPEC_FULL.md §4.1-§4.2,
// §4.6: it validates incoming .tbz bundles, fans them out by hard link or
// copy into per-destination queue directories, and drains those queues to
// remote collectors over rsync.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rrobinett/wsprdaemon-server/internal/clierr"
	"github.com/rrobinett/wsprdaemon-server/internal/config"
	"github.com/rrobinett/wsprdaemon-server/internal/inodecache"
	"github.com/rrobinett/wsprdaemon-server/internal/logging"
	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
	"github.com/rrobinett/wsprdaemon-server/internal/reflector"
	"github.com/rrobinett/wsprdaemon-server/internal/ui"
)

// shutdownGrace bounds how long main waits for in-flight scan/rsync cycles
// to finish once a shutdown signal arrives (SPEC_FULL.md §5).
const shutdownGrace = 5 * time.Second

func main() {
	fs := flag.NewFlagSet("reflector", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to reflector JSON config file")
	uploadDirs := fs.StringArray("upload-dir", nil, "Upload directory to scan (repeatable)")
	metricsAddr := fs.String("metrics-addr", "", "Address to serve Prometheus metrics on (e.g. :9091); empty disables")
	verbosity := fs.CountP("verbose", "v", "Increase log verbosity (-v, -vv)")
	jsonOutput := fs.Bool("json", false, "Emit fatal errors as JSON")
	noColor := fs.Bool("no-color", false, "Disable colored output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: reflector [options]

Description:
  Scan upload directories for completed wsprdaemon .tbz bundles, validate
  them, and fan them out into per-destination queue directories. A
  background worker per destination drains its queue to the remote
  collector over rsync, honoring a minimum free-space threshold.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  reflector --config /etc/wsprdaemon/reflector.json
  reflector --upload-dir /var/spool/wsprdaemon/incoming -v
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	ui.InitColors(*noColor)
	log := logging.New(*verbosity)

	cfg, err := config.LoadReflector(*configPath)
	if err != nil {
		clierr.FatalError(clierr.NewConfigError(
			"Failed to load reflector configuration",
			err.Error(),
			"Check the --config path and that it contains valid JSON",
			err,
		), *jsonOutput)
	}

	dirs := *uploadDirs
	if len(dirs) == 0 {
		clierr.FatalError(clierr.NewConfigError(
			"No upload directories configured",
			"Neither --upload-dir nor a config file entry supplied any directories",
			"Pass at least one --upload-dir",
			nil,
		), *jsonOutput)
	}

	metrics.InitReflector()
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("reflector.metrics.server_failed", "error", err)
			}
		}()
	}

	cache := inodecache.New()
	qm := &reflector.QueueManager{
		QueueBaseDir:        cfg.QueueBaseDir,
		LocalMaxUsedPercent: cfg.LocalMaxUsedPercent,
		PurgeBatch:          cfg.QueuePurgeBatch,
		Log:                 log,
	}
	scanner := reflector.NewScanner(cfg, dirs, qm, cache, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	stopCh := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner.Run(stopCh)
	}()

	workers := buildRsyncWorkers(ctx, cfg, log)
	for _, w := range workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, time.Duration(cfg.RsyncIntervalSeconds)*time.Second)
		}()
	}

	ui.Success(fmt.Sprintf("reflector started: %d upload dir(s), %d destination(s)", len(dirs), len(workers)))

	<-ctx.Done()
	log.Info("reflector.shutdown.signal_received")
	close(stopCh)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Warn("reflector.shutdown.grace_period_exceeded")
	}
}

// buildRsyncWorkers constructs one RsyncWorker per configured destination,
// probing each destination's remote host over ssh for the transfer tool. A
// destination that fails the probe is disabled only when the configured
// skip-rsync-check mode is "disable"; in the default "warn" mode it stays
// enabled after a logged warning.
func buildRsyncWorkers(ctx context.Context, cfg config.Reflector, log *slog.Logger) []*reflector.RsyncWorker {
	var workers []*reflector.RsyncWorker
	for _, dest := range cfg.Destinations {
		w := &reflector.RsyncWorker{
			Dest:                dest,
			QueueBaseDir:        cfg.QueueBaseDir,
			MinFreeSpacePercent: cfg.MinFreeSpacePercent,
			BandwidthLimitKBs:   cfg.RsyncBandwidthLimit,
			Timeout:             time.Duration(cfg.RsyncTimeoutSeconds) * time.Second,
			Runner:              reflector.SSHRsyncRunner{},
			Log:                 log,
			RateLimiter:         logging.NewRateLimiter(5 * time.Minute),
		}
		probeTransferTool(ctx, w, cfg.SkipRsyncCheckMode, log)
		workers = append(workers, w)
	}
	return workers
}

// probeTransferTool runs the boot-time "is rsync installed on this
// destination" check over w.Runner (ssh in production, a fake in tests) and
// disables w for the process lifetime on failure when mode is "disable".
func probeTransferTool(ctx context.Context, w *reflector.RsyncWorker, mode string, log *slog.Logger) {
	if err := w.Runner.Which(ctx, w.Dest, w.Timeout); err != nil {
		log.Warn("reflector.destination.disabled", "destination", w.Dest.Name, "reason", err)
		if mode == "disable" {
			w.Disable()
		}
	}
}

package reflector

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rrobinett/wsprdaemon-server/internal/config"
	"github.com/rrobinett/wsprdaemon-server/internal/logging"
	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
)

// Runner abstracts subprocess execution so tests substitute a fake instead
// of shelling out to a real ssh/rsync binary.
type Runner interface {
	// Probe returns the destination's free-space percentage via a bounded
	// remote command.
	Probe(ctx context.Context, dest config.Destination, timeout time.Duration) (float64, error)
	// Transfer invokes the transfer tool for one sync pass against dest.
	Transfer(ctx context.Context, dest config.Destination, queueDir string, bandwidthLimitKBs int, timeout time.Duration) error
	// Which verifies the transfer tool is present on dest's remote host,
	// run once at boot per destination (SPEC_FULL.md §4.2 "Boot-time probe").
	Which(ctx context.Context, dest config.Destination, timeout time.Duration) error
}

// SSHRsyncRunner is the production Runner: a remote `df` probe over ssh and
// rsync with --remove-source-files for the transfer.
type SSHRsyncRunner struct{}

func (SSHRsyncRunner) Probe(ctx context.Context, dest config.Destination, timeout time.Duration) (float64, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	remote := fmt.Sprintf("%s@%s", dest.User, dest.Host)
	args := sshArgs(dest, remote, fmt.Sprintf("df -P %s | tail -1 | awk '{print $5}'", dest.Path))
	out, err := exec.CommandContext(pctx, "ssh", args...).Output()
	if err != nil {
		return 0, fmt.Errorf("rsyncworker: probe %s: %w", dest.Name, err)
	}
	pct := strings.TrimSuffix(strings.TrimSpace(string(out)), "%")
	used, err := strconv.ParseFloat(pct, 64)
	if err != nil {
		return 0, fmt.Errorf("rsyncworker: parse df output %q: %w", out, err)
	}
	return 100 - used, nil
}

// Which checks for rsync on dest's remote host over ssh, matching
// verify_destination_rsync() in the reference implementation: the probe
// runs against the destination, never the local machine, since the local
// rsync binary going missing has no bearing on whether any given remote
// host has it installed.
func (SSHRsyncRunner) Which(ctx context.Context, dest config.Destination, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	remote := fmt.Sprintf("%s@%s", dest.User, dest.Host)
	args := sshArgs(dest, remote, "which rsync")
	if err := exec.CommandContext(wctx, "ssh", args...).Run(); err != nil {
		return fmt.Errorf("rsyncworker: rsync not found on %s: %w", dest.Name, err)
	}
	return nil
}

func (SSHRsyncRunner) Transfer(ctx context.Context, dest config.Destination, queueDir string, bandwidthLimitKBs int, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-a", "--remove-source-files", "--exclude=.*",
		fmt.Sprintf("--bwlimit=%d", bandwidthLimitKBs),
	}
	if dest.SSHKey != "" {
		args = append(args, "-e", fmt.Sprintf("ssh -i %s", dest.SSHKey))
	}
	args = append(args, queueDir+"/", fmt.Sprintf("%s@%s:%s", dest.User, dest.Host, dest.Path))

	cmd := exec.CommandContext(tctx, "rsync", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rsyncworker: transfer to %s failed: %w: %s", dest.Name, err, stderr.String())
	}
	return nil
}

func sshArgs(dest config.Destination, remote, remoteCmd string) []string {
	args := []string{}
	if dest.SSHKey != "" {
		args = append(args, "-i", dest.SSHKey)
	}
	args = append(args, remote, remoteCmd)
	return args
}

// RsyncWorker drains one destination's queue directory to its remote host.
type RsyncWorker struct {
	Dest                config.Destination
	QueueBaseDir        string
	MinFreeSpacePercent float64
	BandwidthLimitKBs   int
	Timeout             time.Duration
	Runner              Runner
	Log                 *slog.Logger
	RateLimiter         *logging.RateLimiter

	disabled bool
}

// Disable marks this destination inert for the process lifetime, used when
// the boot-time transfer-tool probe fails and skip_rsync_check_mode is
// "disable".
func (w *RsyncWorker) Disable() { w.disabled = true }

// Disabled reports whether this worker has been permanently disabled.
func (w *RsyncWorker) Disabled() bool { return w.disabled }

func (w *RsyncWorker) queueDir() string {
	return filepath.Join(w.QueueBaseDir, w.Dest.Name)
}

// Cycle runs one drain pass: empty-queue short-circuit, free-space probe,
// threshold check, then transfer (SPEC_FULL.md §4.2).
func (w *RsyncWorker) Cycle(ctx context.Context) error {
	if w.disabled {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(w.queueDir(), "*.tbz"))
	if err != nil {
		return fmt.Errorf("rsyncworker: glob queue: %w", err)
	}
	if len(matches) == 0 {
		return nil
	}

	freePercent, err := w.Runner.Probe(ctx, w.Dest, w.Timeout)
	if err != nil {
		if w.RateLimiter == nil || w.RateLimiter.Allow("probe-failed:"+w.Dest.Name) {
			w.Log.Warn("reflector.rsyncworker.probe_failed", "destination", w.Dest.Name, "error", err)
		}
		metrics.Reflector.RsyncSkipped.WithLabelValues(w.Dest.Name).Inc()
		return nil
	}

	if freePercent < w.MinFreeSpacePercent {
		if w.RateLimiter == nil || w.RateLimiter.Allow("low-space:"+w.Dest.Name) {
			w.Log.Warn("reflector.rsyncworker.low_free_space", "destination", w.Dest.Name, "free_percent", freePercent)
		}
		metrics.Reflector.RsyncSkipped.WithLabelValues(w.Dest.Name).Inc()
		return nil
	}

	if err := w.Runner.Transfer(ctx, w.Dest, w.queueDir(), w.BandwidthLimitKBs, w.Timeout); err != nil {
		w.Log.Error("reflector.rsyncworker.transfer_failed", "destination", w.Dest.Name, "error", err)
		return err
	}
	metrics.Reflector.RsyncTransfers.WithLabelValues(w.Dest.Name).Inc()
	return nil
}

// Run repeatedly calls Cycle every interval until ctx is cancelled.
func (w *RsyncWorker) Run(ctx context.Context, interval time.Duration) {
	for {
		if err := w.Cycle(ctx); err != nil {
			w.Log.Debug("reflector.rsyncworker.cycle_error", "destination", w.Dest.Name, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

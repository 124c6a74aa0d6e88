package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rrobinett/wsprdaemon-server/internal/config"
	"github.com/rrobinett/wsprdaemon-server/internal/reflector"
)

type fakeWhichRunner struct {
	whichErr error
}

func (f *fakeWhichRunner) Probe(ctx context.Context, dest config.Destination, timeout time.Duration) (float64, error) {
	return 100, nil
}

func (f *fakeWhichRunner) Transfer(ctx context.Context, dest config.Destination, queueDir string, bandwidthLimitKBs int, timeout time.Duration) error {
	return nil
}

func (f *fakeWhichRunner) Which(ctx context.Context, dest config.Destination, timeout time.Duration) error {
	return f.whichErr
}

func newTestWorker(runner reflector.Runner, name string) *reflector.RsyncWorker {
	return &reflector.RsyncWorker{
		Dest:    config.Destination{Name: name, Host: "collector.example.org", User: "wd"},
		Runner:  runner,
		Log:     discardLogger(),
		Timeout: time.Second,
	}
}

func TestProbeTransferTool_DisablesOnlyFailingDestinationWhenModeDisable(t *testing.T) {
	good := newTestWorker(&fakeWhichRunner{}, "good")
	bad := newTestWorker(&fakeWhichRunner{whichErr: errors.New("rsync: command not found")}, "bad")

	probeTransferTool(context.Background(), good, "disable", discardLogger())
	probeTransferTool(context.Background(), bad, "disable", discardLogger())

	if good.Disabled() {
		t.Error("expected destination with a successful remote probe to remain enabled")
	}
	if !bad.Disabled() {
		t.Error("expected destination with a failing remote probe to be disabled")
	}
}

func TestProbeTransferTool_WarnsButKeepsEnabledWhenModeWarn(t *testing.T) {
	bad := newTestWorker(&fakeWhichRunner{whichErr: errors.New("rsync: command not found")}, "bad")

	probeTransferTool(context.Background(), bad, "warn", discardLogger())

	if bad.Disabled() {
		t.Error("expected mode=warn to leave the destination enabled despite a failing probe")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Package logging wraps log/slog with the dotted event-name convention used
// throughout this repository ("reflector.scan.cycle", "ingester.bundle.
// insert_failed", ...) and a rate-limited helper for the Reflector's
// 5-minute rsync-probe-skip log throttle.
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LevelForVerbosity maps a counted -v flag (0, 1, 2+) onto an slog level,
// matching the reference server's WARNING/INFO/DEBUG verbosity ladder.
func LevelForVerbosity(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelWarn
	case v == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// New builds the process-wide logger, writing structured text to stderr at
// the level implied by verbosity.
func New(verbosity int) *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: LevelForVerbosity(verbosity),
	})
	return slog.New(h)
}

// Event logs msg under a dotted event name with key-value attributes, e.g.
// Event(log, slog.LevelInfo, "reflector.scan.cycle", "found", n).
func Event(log *slog.Logger, level slog.Level, event string, args ...any) {
	log.Log(context.Background(), level, event, args...)
}

// RateLimiter suppresses repeated log lines for the same key to at most once
// per interval, used for the RsyncWorker's probe-failure and low-space logs
// (5 minutes). The QueueManager throttles its pressure log on its own.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval, last: make(map[string]time.Time)}
}

// Allow reports whether a log line for key may be emitted now, recording the
// emission time if so.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if last, ok := r.last[key]; ok && now.Sub(last) < r.interval {
		return false
	}
	r.last[key] = now
	return true
}

package reflector

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rrobinett/wsprdaemon-server/internal/config"
	"github.com/rrobinett/wsprdaemon-server/internal/inodecache"
	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
)

// inconclusiveBackoffCycles is the number of scan cycles an inode stays
// exempt from re-validation after an inconclusive outcome (SPEC_FULL.md §4.1
// step 2).
const inconclusiveBackoffCycles = 100

// Scanner walks the upload directories once per cycle, validating and
// fanning out bundles to every destination queue, per SPEC_FULL.md §4.1.
type Scanner struct {
	Config      config.Reflector
	UploadDirs  []string
	QueueMgr    *QueueManager
	Cache       *inodecache.Cache
	Log         *slog.Logger

	mu                sync.Mutex
	lastHeartbeat     time.Time
	processedSince    int
	cycleInconclusive map[uint64]int // inode -> cycles remaining before retry
}

// NewScanner builds a Scanner with its inconclusive-backoff bookkeeping
// initialized.
func NewScanner(cfg config.Reflector, uploadDirs []string, qm *QueueManager, cache *inodecache.Cache, log *slog.Logger) *Scanner {
	return &Scanner{
		Config:            cfg,
		UploadDirs:        uploadDirs,
		QueueMgr:          qm,
		Cache:             cache,
		Log:               log,
		cycleInconclusive: make(map[uint64]int),
	}
}

// Cycle performs one full scan: discovery, classification, validation,
// fan-out, and bookkeeping.
func (s *Scanner) Cycle() {
	start := time.Now()
	defer func() {
		metrics.Reflector.ScanCycles.Inc()
		metrics.Reflector.ScanCycleDuration.Observe(time.Since(start).Seconds())
	}()

	candidates := s.discover()
	destinations := destinationNames(s.Config.Destinations)

	for _, path := range candidates {
		s.processOne(path, destinations)
	}

	s.QueueMgr.MaybePurge(false)
	s.maybeHeartbeat()
}

func destinationNames(dests []config.Destination) []string {
	names := make([]string, len(dests))
	for i, d := range dests {
		names[i] = d.Name
	}
	return names
}

// discover walks every upload directory, unlinking delete-pattern matches
// immediately and collecting .tbz candidates up to max_files_per_scan.
func (s *Scanner) discover() []string {
	var candidates []string
	limit := s.Config.MaxFilesPerScan
	if limit <= 0 {
		limit = 1000
	}

	for _, root := range s.UploadDirs {
		visited := map[string]bool{}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return filepath.SkipDir
			}
			if d.IsDir() {
				real, rerr := filepath.EvalSymlinks(path)
				if rerr == nil {
					if visited[real] {
						return filepath.SkipDir
					}
					visited[real] = true
				}
				return nil
			}
			name := d.Name()
			if matchesAny(name, s.Config.DeletePatterns) {
				os.Remove(path)
				return nil
			}
			if filepath.Ext(name) == ".tbz" {
				if len(candidates) < limit {
					candidates = append(candidates, path)
				}
			}
			return nil
		})
	}
	return candidates
}

func matchesAny(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, err := filepath.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *Scanner) processOne(path string, destinations []string) {
	info, err := os.Stat(path)
	if err != nil {
		return // vanished between discovery and processing
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	ino := stat.Ino
	age := time.Since(info.ModTime())

	state := s.Cache.Lookup(ino)
	switch state.Status {
	case inodecache.Valid:
		s.fanOutAndFinish(path, ino, destinations)
		return
	case inodecache.Corrupt:
		if time.Since(state.FirstSeen) >= time.Duration(s.Config.CorruptMinAgeSeconds)*time.Second {
			s.quarantineOrRemove(path)
			s.Cache.Drop(ino)
		}
		return
	case inodecache.Inconclusive:
		s.mu.Lock()
		remaining, tracked := s.cycleInconclusive[ino]
		s.mu.Unlock()
		if tracked && remaining > 0 {
			s.mu.Lock()
			s.cycleInconclusive[ino]--
			s.mu.Unlock()
			return
		}
		// Backoff window elapsed; fall through to re-validate.
	default:
		if age < time.Duration(s.Config.MinAgeSeconds)*time.Second {
			return
		}
	}

	timeout := time.Duration(s.Config.TarTimeoutSeconds) * time.Second
	outcome := Validate(path, timeout)
	switch outcome.Status {
	case inodecache.Valid:
		metrics.Reflector.ValidatedOK.Inc()
		s.Cache.MarkValid(ino)
		s.fanOutAndFinish(path, ino, destinations)
	case inodecache.Corrupt:
		metrics.Reflector.ValidatedCorrupt.Inc()
		s.Cache.MarkCorrupt(ino, outcome.Reason)
		if s.Log != nil {
			s.Log.Warn("reflector.scanner.corrupt", "path", path, "reason", outcome.Reason)
		}
	case inodecache.Inconclusive:
		metrics.Reflector.ValidatedInconclusive.Inc()
		s.Cache.MarkInconclusive(ino)
		s.mu.Lock()
		s.cycleInconclusive[ino] = inconclusiveBackoffCycles
		s.mu.Unlock()
		if s.Log != nil {
			s.Log.Warn("reflector.scanner.inconclusive", "path", path, "reason", outcome.Reason)
		}
	}
}

func (s *Scanner) fanOutAndFinish(path string, ino uint64, destinations []string) {
	result := FanOut(path, s.Config.QueueBaseDir, destinations, func() {
		s.QueueMgr.MaybePurge(true)
	})
	for dest, err := range result {
		if err != nil {
			metrics.Reflector.FanOutFailed.WithLabelValues(dest).Inc()
		} else {
			metrics.Reflector.FanOutOK.WithLabelValues(dest).Inc()
		}
	}
	if !result.AllSucceeded() {
		return // partial success; retry failed destinations next cycle
	}

	s.Cache.Drop(ino)
	if err := os.Remove(path); err == nil {
		metrics.Reflector.SourceUnlinked.Inc()
		s.mu.Lock()
		s.processedSince++
		s.mu.Unlock()
	}
}

func (s *Scanner) quarantineOrRemove(path string) {
	if s.Config.QuarantineDir == "" {
		os.Remove(path)
		return
	}
	if err := os.MkdirAll(s.Config.QuarantineDir, 0o755); err != nil {
		os.Remove(path)
		return
	}
	target := filepath.Join(s.Config.QuarantineDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		os.Remove(path)
	}
}

func (s *Scanner) maybeHeartbeat() {
	interval := time.Duration(s.Config.HeartbeatIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.mu.Lock()
	now := time.Now()
	due := now.Sub(s.lastHeartbeat) >= interval
	if !due {
		s.mu.Unlock()
		return
	}
	s.lastHeartbeat = now
	processed := s.processedSince
	s.processedSince = 0
	s.mu.Unlock()

	if s.Log != nil {
		queueSizes := make(map[string]int, len(s.Config.Destinations))
		for _, d := range s.Config.Destinations {
			matches, _ := filepath.Glob(filepath.Join(s.Config.QueueBaseDir, d.Name, "*.tbz"))
			queueSizes[d.Name] = len(matches)
		}
		s.Log.Info("reflector.scanner.heartbeat",
			"queue_sizes", queueSizes,
			"tracked_inodes", s.Cache.Len(),
			"processed_since_last", processed,
		)
	}
}

// Run calls Cycle every scan_interval seconds until stop is closed.
func (s *Scanner) Run(stop <-chan struct{}) {
	interval := time.Duration(s.Config.ScanIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	for {
		s.Cycle()
		select {
		case <-stop:
			return
		case <-time.After(interval):
		}
	}
}

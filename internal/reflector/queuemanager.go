package reflector

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rrobinett/wsprdaemon-server/internal/metrics"
)

// QueueManager purges the queue holding the most .tbz files when local disk
// usage crosses a watermark, oldest-by-mtime first (SPEC_FULL.md §4.6). Its
// check is rate-limited to at most once per 30 seconds, and its pressure log
// line at most once per minute while sustained.
type QueueManager struct {
	QueueBaseDir        string
	LocalMaxUsedPercent float64
	PurgeBatch          int
	Log                 *slog.Logger

	mu         sync.Mutex
	lastCheck  time.Time
	lastLogged time.Time
}

const (
	queueManagerCheckInterval = 30 * time.Second
	queueManagerLogInterval   = time.Minute
)

// MaybePurge checks disk usage (rate-limited) and purges the largest queue
// if it exceeds LocalMaxUsedPercent. Call this once per scan cycle; it is a
// no-op until the check interval has elapsed since the last call, unless
// force is true (used for the immediate-on-ENOSPC path in §4.1 step 4).
func (qm *QueueManager) MaybePurge(force bool) {
	qm.mu.Lock()
	now := time.Now()
	if !force && now.Sub(qm.lastCheck) < queueManagerCheckInterval {
		qm.mu.Unlock()
		return
	}
	qm.lastCheck = now
	qm.mu.Unlock()

	usedPercent, err := diskUsedPercent(qm.QueueBaseDir)
	if err != nil {
		if qm.Log != nil {
			qm.Log.Warn("reflector.queuemanager.statfs_failed", "error", err)
		}
		return
	}
	if usedPercent <= qm.LocalMaxUsedPercent {
		return
	}

	qm.mu.Lock()
	shouldLog := now.Sub(qm.lastLogged) >= queueManagerLogInterval
	if shouldLog {
		qm.lastLogged = now
	}
	qm.mu.Unlock()
	if shouldLog && qm.Log != nil {
		qm.Log.Warn("reflector.queuemanager.pressure", "used_percent", usedPercent, "threshold", qm.LocalMaxUsedPercent)
	}

	qm.PurgeLargestQueue()
}

// PurgeLargestQueue unlinks the oldest PurgeBatch files (by mtime) from
// whichever destination subdirectory currently holds the most .tbz files.
func (qm *QueueManager) PurgeLargestQueue() {
	dirs, err := os.ReadDir(qm.QueueBaseDir)
	if err != nil {
		return
	}

	var largest string
	var largestCount int
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dirPath := filepath.Join(qm.QueueBaseDir, d.Name())
		files, err := filepath.Glob(filepath.Join(dirPath, "*.tbz"))
		if err != nil {
			continue
		}
		if len(files) > largestCount {
			largestCount = len(files)
			largest = dirPath
		}
	}
	if largest == "" {
		return
	}

	files, err := filepath.Glob(filepath.Join(largest, "*.tbz"))
	if err != nil || len(files) == 0 {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	infos := make([]fileInfo, 0, len(files))
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: f, modTime: st.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].modTime.Before(infos[j].modTime) })

	batch := qm.PurgeBatch
	if batch <= 0 || batch > len(infos) {
		batch = len(infos)
	}

	purged := 0
	for i := 0; i < batch; i++ {
		if err := os.Remove(infos[i].path); err == nil {
			purged++
		}
	}
	metrics.Reflector.QueuePurges.Inc()
	metrics.Reflector.QueuePurgedFiles.Add(float64(purged))
	if qm.Log != nil {
		qm.Log.Info("reflector.queuemanager.purged", "queue", largest, "count", purged)
	}
}

func diskUsedPercent(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	used := total - free
	return float64(used) / float64(total) * 100.0, nil
}

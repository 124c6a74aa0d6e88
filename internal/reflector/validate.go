package reflector

import (
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rrobinett/wsprdaemon-server/internal/inodecache"
)

// corruptionIndicators are stderr substrings (case-insensitive) that
// distinguish a definitely-corrupt archive from an inconclusive failure
// (permission error, busy file, transient I/O error), per SPEC_FULL.md §4.1
// step 3.
var corruptionIndicators = []string{
	"unexpected eof", "truncated", "corrupted", "invalid tar",
	"not in gzip format", "invalid compressed data", "crc error", "length error",
	"not a bzip2 file",
}

// ValidateOutcome is the tagged result of attempting to validate one bundle.
type ValidateOutcome struct {
	Status inodecache.Status // Valid, Corrupt, or Inconclusive
	Reason string
}

// Validate spawns "tar tjf <path>" (list bzip2 tar contents, no extraction)
// in its own process group with a bounded timeout, classifying the outcome
// per §4.1 step 3. A timeout or any error other than a recognized
// corruption indicator is Inconclusive and kills the process group
// (SIGTERM then, if still alive after a grace period, SIGKILL).
func Validate(path string, timeout time.Duration) ValidateOutcome {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tar", "tjf", path)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stderr strings.Builder
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return ValidateOutcome{Status: inodecache.Valid}
	}

	stderrLower := strings.ToLower(stderr.String())
	for _, indicator := range corruptionIndicators {
		if strings.Contains(stderrLower, indicator) {
			return ValidateOutcome{Status: inodecache.Corrupt, Reason: stderr.String()}
		}
	}

	if cmd.Process != nil {
		killProcessGroup(cmd.Process.Pid)
	}
	return ValidateOutcome{Status: inodecache.Inconclusive, Reason: err.Error()}
}

func killProcessGroup(pid int) {
	pgid := -pid
	syscall.Kill(pgid, syscall.SIGTERM)
	time.Sleep(200 * time.Millisecond)
	syscall.Kill(pgid, syscall.SIGKILL)
}

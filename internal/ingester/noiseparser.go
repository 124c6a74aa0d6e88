package ingester

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rrobinett/wsprdaemon-server/pkg/record"
)

// noiseFilenameRe matches YYMMDD_HHMM_noise.txt.
var noiseFilenameRe = regexp.MustCompile(`^(\d{6})_(\d{4})_noise\.txt$`)

// ParseNoiseFilename extracts the UTC timestamp encoded in a noise
// filename. Returns ok=false for any name not matching the expected shape.
func ParseNoiseFilename(name string) (time.Time, bool) {
	m := noiseFilenameRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	return parseSpotTime(m[1], m[2])
}

// ParseNoiseBody parses the single-line, 15-whitespace-token body of a
// *_noise.txt file. Only fields 12-14 (rms_level, c2_level, ov) are used;
// fields 0-11 are sox calibration intermediates ignored by this pipeline
// (SPEC_FULL.md §4.5). Returns ok=false if the body does not contain exactly
// 15 tokens or any of the three used fields fails to parse.
func ParseNoiseBody(body string) (rmsLevel, c2Level float64, ov int32, ok bool) {
	fields := strings.Fields(strings.TrimSpace(body))
	if len(fields) != 15 {
		return 0, 0, 0, false
	}
	rms, err := strconv.ParseFloat(fields[12], 64)
	if err != nil {
		return 0, 0, 0, false
	}
	c2, err := strconv.ParseFloat(fields[13], 64)
	if err != nil {
		return 0, 0, 0, false
	}
	ovFloat, err := strconv.ParseFloat(fields[14], 64)
	if err != nil {
		return 0, 0, 0, false
	}
	return rms, c2, clampInt32(ovFloat), true
}

// clampInt32 saturates v to the int32 range before conversion, since a
// direct float64->int32 conversion of an out-of-range value is
// implementation-defined rather than a clamp.
func clampInt32(v float64) int32 {
	switch {
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

// BuildNoiseRecord assembles a Noise record from a parsed body, a decoded
// timestamp, and the enclosing RX_SITE/RECEIVER/BAND directory segments.
func BuildNoiseRecord(ts time.Time, site, receiver, rxLoc, band string, rmsLevel, c2Level float64, ov int32) record.Noise {
	return record.Noise{
		Time:     ts,
		Site:     site,
		Receiver: receiver,
		RxLoc:    rxLoc,
		Band:     band,
		RMSLevel: rmsLevel,
		C2Level:  c2Level,
		Ov:       ov,
	}
}

// noiseParseError describes why a single noise file was skipped. No code in
// this package constructs it; collectNoise and the BatchLoader skip bad
// noise files without recording a reason.
type noiseParseError struct {
	file   string
	reason string
}

func (e *noiseParseError) Error() string {
	return fmt.Sprintf("noise file %s: %s", e.file, e.reason)
}

package ingester

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rrobinett/wsprdaemon-server/pkg/record"
)

// ParseSpotLines reads lines of a *_spots.txt file and returns one Spot per
// well-formed line. Lines with fewer than 34 whitespace-delimited tokens, or
// with a parse error in any field, are skipped individually rather than
// aborting the file (SPEC_FULL.md §4.4).
//
// version is CLIENT_VERSION from uploads_config.txt, attached to every spot
// when present. band/rxID/rxSignDir/rxGridDir come from the enclosing
// RX_SITE/RECEIVER/BAND directory path; rx_sign/rx_loc in the line itself
// (fields 22/21) take priority over the directory-derived fallback.
func ParseSpotLines(r io.Reader, band, rxID, rxSignDir, rxGridDir string, version *string) []record.Spot {
	var spots []record.Spot
	bandDir, _ := BandStrToMeters(band)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 34 {
			continue
		}

		sp, ok := parseSpotFields(parts)
		if !ok {
			continue
		}

		sp.RxID = rxID
		sp.Band = bandDir
		if sp.RxSign == "" {
			sp.RxSign = rxSignDir
		}
		if sp.RxLoc == "" {
			sp.RxLoc = rxGridDir
		}
		sp.Version = version
		sp.RxStatus = "No Info"

		spots = append(spots, sp)
	}
	return spots
}

func parseSpotFields(p []string) (record.Spot, bool) {
	var sp record.Spot

	t, ok := parseSpotTime(p[0], p[1])
	if !ok {
		return sp, false
	}
	sp.Time = t

	f := fieldParser{parts: p}
	sp.SyncQuality = f.float(2)
	sp.SNR = f.intFromFloat(3)
	sp.DT = f.float(4)
	freqMHz := f.float(5)
	sp.Frequency = int64(freqMHz * 1_000_000.0)
	sp.FrequencyMHz = freqMHz
	sp.TxSign = p[6]
	if strings.EqualFold(p[7], "none") {
		sp.TxLoc = ""
	} else {
		sp.TxLoc = p[7]
	}
	sp.PowerDBm = f.intFromFloat(8)
	sp.Drift = f.intFromFloat(9)
	sp.DecodeCycles = f.intFromFloat(10)
	sp.Jitter = f.intFromFloat(11)
	sp.BlockSize = f.intFromFloat(12)
	sp.Metric = f.intFromFloat(13)
	sp.OSDDecode = f.intFromFloat(14)
	sp.IPass = f.intFromFloat(15)
	sp.NHardMin = f.intFromFloat(16)
	sp.Code = f.intFromFloat(17)
	sp.RMSNoise = f.float(18)
	sp.C2Noise = f.float(19)
	sp.BandM = f.intFromFloat(20)
	sp.RxLoc = p[21]
	sp.RxSign = p[22]
	sp.DistanceKm = f.intFromFloat(23)
	sp.RxAzimuth = f.float(24)
	sp.RxLat = f.float(25)
	sp.RxLon = f.float(26)
	sp.Azimuth = f.float(27)
	sp.TxLat = f.float(28)
	sp.TxLon = f.float(29)
	sp.VLat = f.float(30)
	sp.VLon = f.float(31)
	sp.OvCount = f.intFromFloat(32)
	sp.ProxyUpload = f.intFromFloat(33) != 0

	if f.err != nil {
		return sp, false
	}
	return sp, true
}

// parseSpotTime decodes YYMMDD + HHMM into a UTC time, matching the
// reference implementation's 2000+YY year convention.
func parseSpotTime(dateStr, timeStr string) (time.Time, bool) {
	if len(dateStr) != 6 || len(timeStr) != 4 {
		return time.Time{}, false
	}
	year, err1 := strconv.Atoi(dateStr[0:2])
	month, err2 := strconv.Atoi(dateStr[2:4])
	day, err3 := strconv.Atoi(dateStr[4:6])
	hour, err4 := strconv.Atoi(timeStr[0:2])
	minute, err5 := strconv.Atoi(timeStr[2:4])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return time.Time{}, false
	}
	return time.Date(2000+year, time.Month(month), day, hour, minute, 0, 0, time.UTC), true
}

// fieldParser parses float/int fields by index, remembering the first error
// encountered so the caller can discard the whole line on any failure
// (mirroring the reference implementation's single try/except per line).
type fieldParser struct {
	parts []string
	err   error
}

func (f *fieldParser) float(i int) float64 {
	if f.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(f.parts[i], 64)
	if err != nil {
		f.err = err
		return 0
	}
	return v
}

func (f *fieldParser) intFromFloat(i int) int {
	return int(f.float(i))
}

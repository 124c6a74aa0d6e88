package ingester

import "regexp"

// rxSiteRe matches a RX_SITE directory name CALLSIGN=SUFFIX_GRID, where '='
// substitutes for '/' in the callsign and the trailing token is a 4-6
// character Maidenhead grid.
var rxSiteRe = regexp.MustCompile(`^(.+)_([A-Ra-r]{2}[0-9]{2}[A-Xa-x]{0,2})$`)

// DecodeRxSiteDir splits a RX_SITE directory name into (rx_sign, rx_grid).
// Falls back to the raw directory name (with '=' restored to '/') and an
// empty grid when no grid suffix is recognized.
func DecodeRxSiteDir(rxSiteDir string) (sign, grid string) {
	if m := rxSiteRe.FindStringSubmatch(rxSiteDir); m != nil {
		return deslash(m[1]), m[2]
	}
	return deslash(rxSiteDir), ""
}

func deslash(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			out[i] = '/'
		} else {
			out[i] = s[i]
		}
	}
	return string(out)
}

// bandPrefixRe extracts the leading digit run of a BAND directory segment,
// e.g. "60eu" -> "60", "17" -> "17".
var bandPrefixRe = regexp.MustCompile(`^(\d+)`)

// BandStrToMeters converts a BAND directory segment to an integer band in
// metres, or (0, false) if the segment has no recognizable numeric prefix.
func BandStrToMeters(bandStr string) (int, bool) {
	m := bandPrefixRe.FindStringSubmatch(bandStr)
	if m == nil {
		return 0, false
	}
	n := 0
	for _, c := range m[1] {
		n = n*10 + int(c-'0')
	}
	return n, true
}

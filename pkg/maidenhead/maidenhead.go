// Package maidenhead converts Maidenhead grid locators to the center
// latitude/longitude of the square they encode.
//
// The conversion follows a single fixed convention used throughout this
// repository (SPEC_FULL.md §3): 4-character grids are centered on subsquare
// index 11 ("ll"); 6-character grids add the subsquare offset plus a half-
// subsquare nudge to reach that subsquare's own center. The standalone
// gridfix corrector is its only caller; the spot and noise parsers take
// coordinates from the spot lines and do not convert grids.
package maidenhead

import "math"

// Sentinel is returned for any input that cannot be decoded as a valid grid.
const Sentinel = -999.0

// ToLatLon converts grid to the center (lat, lon) of the square it encodes,
// rounded to 3 decimal places. Invalid input yields (Sentinel, Sentinel).
func ToLatLon(grid string) (lat, lon float64) {
	if len(grid) < 4 {
		return Sentinel, Sentinel
	}

	field := []byte{toUpper(grid[0]), toUpper(grid[1])}
	if field[0] < 'A' || field[0] > 'R' || field[1] < 'A' || field[1] > 'R' {
		return Sentinel, Sentinel
	}
	if grid[2] < '0' || grid[2] > '9' || grid[3] < '0' || grid[3] > '9' {
		return Sentinel, Sentinel
	}

	lon = float64(field[0]-'A')*20 - 180
	lat = float64(field[1]-'A')*10 - 90

	lon += float64(grid[2]-'0') * 2
	lat += float64(grid[3]-'0') * 1

	if len(grid) >= 6 {
		sub := []byte{toLower(grid[4]), toLower(grid[5])}
		if sub[0] < 'a' || sub[0] > 'x' || sub[1] < 'a' || sub[1] > 'x' {
			return Sentinel, Sentinel
		}
		lon += float64(sub[0]-'a') * (2.0 / 24.0)
		lat += float64(sub[1]-'a') * (1.0 / 24.0)
		lon += 1.0 / 24.0
		lat += 0.5 / 24.0
	} else {
		lon += 11*(2.0/24.0) + 1.0/24.0  // = 23/24
		lat += 11*(1.0/24.0) + 0.5/24.0 // = 11.5/24
	}

	return round3(lat), round3(lon)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func toUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// Package record defines the static Spot and Noise record types that flow
// from the spot/noise text-file parsers through to the analytic store
// inserter, replacing the dynamic-typed key-value bags described in
// SPEC_FULL.md §9's "dynamic maps → static records" design note.
package record

import "time"

// Spot is one decoded WSPR transmission observation, mirroring the 34-field
// line format of *_spots.txt (SPEC_FULL.md §4.4) and the spots table schema.
type Spot struct {
	Time         time.Time
	SyncQuality  float64
	SNR          int
	DT           float64
	Frequency    int64 // Hz
	FrequencyMHz float64
	TxSign       string
	TxLoc        string
	PowerDBm     int
	Drift        int
	DecodeCycles int
	Jitter       int
	BlockSize    int
	Metric       int
	OSDDecode    int
	IPass        int
	NHardMin     int
	Code         int
	RMSNoise     float64
	C2Noise      float64
	BandM        int // from file field 20, wire-format value
	Band         int // integer band derived from the BAND directory segment
	RxLoc        string
	RxSign       string
	RxID         string // RECEIVER directory segment, never store-resolved
	DistanceKm   int
	RxAzimuth    float64
	RxLat        float64
	RxLon        float64
	Azimuth      float64 // tx-relative
	TxLat        float64
	TxLon        float64
	VLat         float64
	VLon         float64
	OvCount      int
	ProxyUpload  bool
	Version      *string // CLIENT_VERSION if present, else nil
	RxStatus     string  // defaults to "No Info"
}

// Noise is one per-minute per-band calibrated noise floor measurement,
// mirroring the 15-field line format of *_noise.txt (SPEC_FULL.md §4.5).
type Noise struct {
	Time     time.Time
	Site     string // decoded rx callsign from RX_SITE
	Receiver string // RECEIVER directory segment
	RxLoc    string // grid
	Band     string // raw BAND string, e.g. "60eu"
	RMSLevel float64
	C2Level  float64
	Ov       int32
}

package chstore

import "fmt"

// spotsTableDDL and noiseTableDDL are reproduced verbatim (column names,
// types, CODECs, engine and ordering key) from the reference server's
// setup_clickhouse_tables, less the id/ALIAS columns it notes as optional.
const spotsTableDDL = `
CREATE TABLE IF NOT EXISTS %s.%s
(
	time          DateTime                          CODEC(Delta(4), ZSTD(1)),
	band          Int16                             CODEC(T64, ZSTD(1)),
	rx_sign       LowCardinality(String)            CODEC(LZ4),
	rx_lat        Float32                           CODEC(Delta(4), ZSTD(3)),
	rx_lon        Float32                           CODEC(Delta(4), ZSTD(3)),
	rx_loc        LowCardinality(String)            CODEC(LZ4),
	tx_sign       LowCardinality(String)            CODEC(LZ4),
	tx_lat        Float32                           CODEC(Delta(4), ZSTD(3)),
	tx_lon        Float32                           CODEC(Delta(4), ZSTD(3)),
	tx_loc        LowCardinality(String)            CODEC(LZ4),
	distance      Int32                             CODEC(T64, ZSTD(1)),
	azimuth       Float32                           CODEC(Delta(4), ZSTD(3)),
	rx_azimuth    Float32                           CODEC(Delta(4), ZSTD(3)),
	frequency     UInt64                            CODEC(Delta(8), ZSTD(3)),
	power         Int8                              CODEC(T64, ZSTD(1)),
	snr           Int8                              CODEC(Delta(4), ZSTD(3)),
	drift         Int8                              CODEC(Delta(4), ZSTD(3)),
	version       LowCardinality(Nullable(String))  CODEC(LZ4),
	code          Int8                              CODEC(ZSTD(1)),
	frequency_mhz Float64                           CODEC(Delta(8), ZSTD(3)),
	rx_id         LowCardinality(String)            CODEC(LZ4),
	v_lat         Float32                           CODEC(Delta(4), ZSTD(3)),
	v_lon         Float32                           CODEC(Delta(4), ZSTD(3)),
	c2_noise      Float32                           CODEC(Delta(4), ZSTD(3)),
	sync_quality  UInt16                            CODEC(ZSTD(1)),
	dt            Float32                           CODEC(Delta(4), ZSTD(3)),
	decode_cycles UInt32                            CODEC(T64, ZSTD(1)),
	jitter        Int16                             CODEC(T64, ZSTD(1)),
	rms_noise     Float32                           CODEC(Delta(4), ZSTD(3)),
	blocksize     UInt16                            CODEC(T64, ZSTD(1)),
	metric        Int16                             CODEC(T64, ZSTD(1)),
	osd_decode    UInt8                             CODEC(T64, ZSTD(1)),
	nhardmin      UInt16                            CODEC(T64, ZSTD(1)),
	ipass         UInt8                             CODEC(T64, ZSTD(1)),
	proxy_upload  UInt8                             CODEC(T64, ZSTD(1)),
	ov_count      UInt32                            CODEC(T64, ZSTD(1)),
	rx_status     LowCardinality(String) DEFAULT 'No Info' CODEC(LZ4),
	band_m        Int16                             CODEC(T64, ZSTD(1))
)
ENGINE = ReplacingMergeTree()
PARTITION BY toYYYYMM(time)
ORDER BY (time, rx_sign, tx_sign, frequency)
SETTINGS index_granularity = 8192
`

const noiseTableDDL = `
CREATE TABLE IF NOT EXISTS %s.%s
(
	time       DateTime                CODEC(Delta(4), ZSTD(1)),
	site       LowCardinality(String)  CODEC(LZ4),
	receiver   LowCardinality(String)  CODEC(LZ4),
	rx_loc     LowCardinality(String)  CODEC(LZ4),
	band       LowCardinality(String)  CODEC(LZ4),
	rms_level  Float32                 CODEC(Delta(4), ZSTD(3)),
	c2_level   Float32                 CODEC(Delta(4), ZSTD(3)),
	ov         Int32                   CODEC(T64, ZSTD(1))
)
ENGINE = ReplacingMergeTree()
PARTITION BY toYYYYMM(time)
ORDER BY (time, site, receiver, band)
SETTINGS index_granularity = 8192
`

// SpotsTableSQL renders the spots table DDL for database.table.
func SpotsTableSQL(database, table string) string {
	return fmt.Sprintf(spotsTableDDL, database, table)
}

// NoiseTableSQL renders the noise table DDL for database.table.
func NoiseTableSQL(database, table string) string {
	return fmt.Sprintf(noiseTableDDL, database, table)
}

// spotColumns and noiseColumns fix the column order used for batched
// columnar inserts, mirroring the reference implementation's use of a
// single column_names list derived from the first record's key order.
var spotColumns = []string{
	"time", "band", "rx_sign", "rx_lat", "rx_lon", "rx_loc",
	"tx_sign", "tx_lat", "tx_lon", "tx_loc",
	"distance", "azimuth", "rx_azimuth", "frequency", "power", "snr", "drift",
	"version", "code", "frequency_mhz", "rx_id", "v_lat", "v_lon", "c2_noise",
	"sync_quality", "dt", "decode_cycles", "jitter", "rms_noise", "blocksize",
	"metric", "osd_decode", "nhardmin", "ipass", "proxy_upload", "ov_count",
	"rx_status", "band_m",
}

var noiseColumns = []string{
	"time", "site", "receiver", "rx_loc", "band", "rms_level", "c2_level", "ov",
}

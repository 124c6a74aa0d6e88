// Package config loads the JSON-backed configuration records for the
// Reflector and Ingester, applying defaults after unmarshal the way the
// reference implementation merges a DEFAULT_CONFIG dict over a partial JSON
// file, and an optional YAML overlay (gopkg.in/yaml.v3) for BatchLoader
// defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Destination is one Reflector fan-out target.
type Destination struct {
	Name   string `json:"name"`
	User   string `json:"user"`
	Host   string `json:"host"`
	Path   string `json:"path"`
	SSHKey string `json:"ssh_key,omitempty"`
}

// Reflector is the Scanner/RsyncWorker/QueueManager configuration record.
type Reflector struct {
	IncomingPattern       string        `json:"incoming_pattern"`
	QueueBaseDir          string        `json:"queue_base_dir"`
	Destinations          []Destination `json:"destinations"`
	ScanIntervalSeconds   int           `json:"scan_interval"`
	RsyncIntervalSeconds  int           `json:"rsync_interval"`
	RsyncBandwidthLimit   int           `json:"rsync_bandwidth_limit"` // KB/s
	RsyncTimeoutSeconds   int           `json:"rsync_timeout"`
	MinAgeSeconds         int           `json:"min_age_seconds"`
	MinFreeSpacePercent   float64       `json:"min_free_space_percent"`
	QuarantineDir         string        `json:"quarantine_dir,omitempty"`
	MaxFilesPerScan       int           `json:"max_files_per_scan"`
	DeletePatterns        []string      `json:"delete_patterns"`
	CorruptMinAgeSeconds  int           `json:"corrupt_min_age_seconds"`
	LocalMaxUsedPercent   float64       `json:"local_max_used_percent"`
	QueuePurgeBatch       int           `json:"queue_purge_batch"`
	HeartbeatIntervalSecs int           `json:"heartbeat_interval"`
	TarTimeoutSeconds     int           `json:"tar_timeout"`
	SkipRsyncCheckMode    string        `json:"skip_rsync_check_mode,omitempty"` // "warn" (default) or "disable"
}

// defaultReflector mirrors the reference implementation's DEFAULT_CONFIG for
// the Reflector, expressed as Go zero-value-aware field assignment.
func defaultReflector() Reflector {
	return Reflector{
		QueueBaseDir:          "/var/spool/wsprdaemon/queues",
		ScanIntervalSeconds:   10,
		RsyncIntervalSeconds:  30,
		RsyncBandwidthLimit:   0, // unlimited
		RsyncTimeoutSeconds:   120,
		MinAgeSeconds:         30,
		MinFreeSpacePercent:   10,
		MaxFilesPerScan:       1000,
		CorruptMinAgeSeconds:  3600,
		LocalMaxUsedPercent:   80,
		QueuePurgeBatch:       50,
		HeartbeatIntervalSecs: 300,
		TarTimeoutSeconds:     30,
		SkipRsyncCheckMode:    "warn",
	}
}

// LoadReflector reads path as JSON and overlays it onto the defaults.
func LoadReflector(path string) (Reflector, error) {
	cfg := defaultReflector()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Ingester is the Ingester/BatchLoader shared configuration record.
type Ingester struct {
	ClickHouseHost       string   `json:"clickhouse_host"`
	ClickHousePort       int      `json:"clickhouse_port"`
	ClickHouseDatabase   string   `json:"clickhouse_database"`
	ClickHouseSpotsTable string   `json:"clickhouse_spots_table"`
	ClickHouseNoiseTable string   `json:"clickhouse_noise_table"`
	IncomingTbzDirs      []string `json:"incoming_tbz_dirs"`
	ExtractionDir        string   `json:"extraction_dir"`
	ProcessedTbzFile     string   `json:"processed_tbz_file"`
	MaxProcessedFileSize int64    `json:"max_processed_file_size"`
	MaxSpotsPerInsert    int      `json:"max_spots_per_insert"`
	MaxNoisePerInsert    int      `json:"max_noise_per_insert"`
	LoopIntervalSeconds  int      `json:"loop_interval"`
}

func defaultIngester() Ingester {
	return Ingester{
		ClickHouseHost:       "localhost",
		ClickHousePort:       8123,
		ClickHouseDatabase:   "wsprdaemon",
		ClickHouseSpotsTable: "spots",
		ClickHouseNoiseTable: "noise",
		ExtractionDir:        "/var/lib/wsprdaemon/extraction",
		ProcessedTbzFile:     "/var/lib/wsprdaemon/wsprdaemon/processed_tbz_list.txt",
		MaxProcessedFileSize: 1_000_000,
		MaxSpotsPerInsert:    50_000,
		MaxNoisePerInsert:    50_000,
		LoopIntervalSeconds:  10,
	}
}

// LoadIngester reads path as JSON and overlays it onto the defaults.
func LoadIngester(path string) (Ingester, error) {
	cfg := defaultIngester()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// BatchLoaderDefaults is the optional YAML overlay accepted by the
// BatchLoader's --config flag, layered beneath its CLI flags.
type BatchLoaderDefaults struct {
	BatchSize  int    `json:"batch_size" yaml:"batch_size"`
	StateFile  string `json:"state_file" yaml:"state_file"`
	SpotsTable string `json:"spots_table" yaml:"spots_table"`
	NoiseTable string `json:"noise_table" yaml:"noise_table"`
}

func defaultBatchLoader() BatchLoaderDefaults {
	return BatchLoaderDefaults{
		BatchSize:  100_000,
		StateFile:  "batchloader_state.json",
		SpotsTable: "spots",
		NoiseTable: "noise",
	}
}

// LoadBatchLoaderDefaults reads path as YAML and overlays it onto the
// defaults. An empty path returns the defaults unchanged.
func LoadBatchLoaderDefaults(path string) (BatchLoaderDefaults, error) {
	cfg := defaultBatchLoader()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

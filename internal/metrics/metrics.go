// Package metrics holds Prometheus metrics for the reflector, ingester and
// batchloader, registered once via sync.Once. The reflector and ingester
// expose them over promhttp when --metrics-addr is set; the batchloader has
// no such flag and does not expose them (SPEC_FULL.md §4.8).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type reflectorMetrics struct {
	once sync.Once

	ScanCycles            prometheus.Counter
	ValidatedOK           prometheus.Counter
	ValidatedCorrupt      prometheus.Counter
	ValidatedInconclusive prometheus.Counter
	FanOutOK              *prometheus.CounterVec
	FanOutFailed          *prometheus.CounterVec
	SourceUnlinked        prometheus.Counter
	QueuePurges           prometheus.Counter
	QueuePurgedFiles      prometheus.Counter
	RsyncTransfers        *prometheus.CounterVec
	RsyncSkipped          *prometheus.CounterVec
	ScanCycleDuration     prometheus.Histogram
}

// Reflector is the process-wide reflector metrics singleton.
var Reflector reflectorMetrics

func (m *reflectorMetrics) init() {
	m.once.Do(func() {
		m.ScanCycles = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_reflector_scan_cycles_total", Help: "Scan cycles completed"})
		m.ValidatedOK = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_reflector_validated_ok_total", Help: "Bundles validated as parseable archives"})
		m.ValidatedCorrupt = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_reflector_validated_corrupt_total", Help: "Bundles found definitely corrupt"})
		m.ValidatedInconclusive = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_reflector_validated_inconclusive_total", Help: "Bundles with an inconclusive validation outcome"})
		m.FanOutOK = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wd_reflector_fanout_ok_total", Help: "Successful fan-out placements by destination"}, []string{"destination"})
		m.FanOutFailed = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wd_reflector_fanout_failed_total", Help: "Failed fan-out placements by destination"}, []string{"destination"})
		m.SourceUnlinked = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_reflector_source_unlinked_total", Help: "Source bundles unlinked after full fan-out"})
		m.QueuePurges = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_reflector_queue_purges_total", Help: "QueueManager purge invocations"})
		m.QueuePurgedFiles = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_reflector_queue_purged_files_total", Help: "Files removed by QueueManager purges"})
		m.RsyncTransfers = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wd_reflector_rsync_transfers_total", Help: "Successful rsync transfer invocations by destination"}, []string{"destination"})
		m.RsyncSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wd_reflector_rsync_skipped_total", Help: "Skipped rsync cycles by destination"}, []string{"destination"})

		buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
		m.ScanCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "wd_reflector_scan_cycle_seconds", Help: "Duration of a scan cycle", Buckets: buckets})

		prometheus.MustRegister(
			m.ScanCycles, m.ValidatedOK, m.ValidatedCorrupt, m.ValidatedInconclusive,
			m.FanOutOK, m.FanOutFailed, m.SourceUnlinked,
			m.QueuePurges, m.QueuePurgedFiles,
			m.RsyncTransfers, m.RsyncSkipped,
			m.ScanCycleDuration,
		)
	})
}

// InitReflector registers the reflector's metrics. Safe to call repeatedly.
func InitReflector() { Reflector.init() }

type ingesterMetrics struct {
	once sync.Once

	BundlesProcessed prometheus.Counter
	BundlesSkipped   prometheus.Counter
	ZombiesRemoved   prometheus.Counter
	SpotsParsed      prometheus.Counter
	SpotsSkipped     prometheus.Counter
	NoiseParsed      prometheus.Counter
	NoiseSkipped     prometheus.Counter
	InsertAttempts   prometheus.Counter
	InsertRetries    prometheus.Counter
	InsertFailures   prometheus.Counter
	CycleDuration    prometheus.Histogram
	InsertDuration   prometheus.Histogram
}

// Ingester is the process-wide ingester (and batchloader) metrics singleton.
var Ingester ingesterMetrics

func (m *ingesterMetrics) init() {
	m.once.Do(func() {
		m.BundlesProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_bundles_processed_total", Help: "Bundles fully processed and unlinked"})
		m.BundlesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_bundles_skipped_total", Help: "Bundles deleted because they could not be extracted"})
		m.ZombiesRemoved = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_zombies_removed_total", Help: "Bundles unlinked because already in the processed memo"})
		m.SpotsParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_spots_parsed_total", Help: "Spot lines successfully parsed"})
		m.SpotsSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_spots_skipped_total", Help: "Spot lines skipped due to malformed fields"})
		m.NoiseParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_noise_parsed_total", Help: "Noise records successfully parsed"})
		m.NoiseSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_noise_skipped_total", Help: "Noise files skipped due to a token-count mismatch"})
		m.InsertAttempts = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_insert_attempts_total", Help: "Bulk insert batches submitted (retries are counted separately)"})
		m.InsertRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_insert_retries_total", Help: "Bulk insert retry attempts"})
		m.InsertFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "wd_ingester_insert_failures_total", Help: "Bulk inserts that failed after all retries"})

		buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
		m.CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "wd_ingester_cycle_seconds", Help: "Duration of an ingest cycle", Buckets: buckets})
		m.InsertDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "wd_ingester_insert_seconds", Help: "Duration of a bulk insert call", Buckets: buckets})

		prometheus.MustRegister(
			m.BundlesProcessed, m.BundlesSkipped, m.ZombiesRemoved,
			m.SpotsParsed, m.SpotsSkipped, m.NoiseParsed, m.NoiseSkipped,
			m.InsertAttempts, m.InsertRetries, m.InsertFailures,
			m.CycleDuration, m.InsertDuration,
		)
	})
}

// InitIngester registers the ingester's (and batchloader's) metrics.
func InitIngester() { Ingester.init() }

// Package metrics records Prometheus metrics for scan and generation runs.
// pregen is a batch tool, so metrics are written to a node-exporter textfile
// at the end of a run instead of being served.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds one run's collectors on a private registry.
// All methods are safe on a nil receiver and then do nothing.
type Metrics struct {
	registry *prometheus.Registry

	imagesScanned     *prometheus.CounterVec
	thumbnailsFound   *prometheus.CounterVec
	coverage          *prometheus.GaugeVec
	scanDuration      prometheus.Gauge
	generated         *prometheus.CounterVec
	generationErrors  *prometheus.CounterVec
	skipped           *prometheus.CounterVec
	bytesGenerated    prometheus.Counter
	itemDuration      prometheus.Histogram
	storageRetries    *prometheus.CounterVec
	storageFailures   *prometheus.CounterVec
	lastRunTimestamp  *prometheus.GaugeVec
	eventsPublished   prometheus.Counter
	eventPublishFails prometheus.Counter
}

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		imagesScanned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pregen_scan_images_total",
			Help: "Total number of originals recorded by the scanner",
		}, []string{"collection"}),
		thumbnailsFound: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pregen_scan_thumbnails_total",
			Help: "Thumbnail descriptors attached to records, by scale",
		}, []string{"collection", "scale"}),
		coverage: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pregen_collection_coverage_ratio",
			Help: "Fraction of originals with at least one thumbnail",
		}, []string{"collection"}),
		scanDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "pregen_scan_duration_seconds",
			Help: "Duration of the last scan",
		}),
		generated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pregen_thumbnails_generated_total",
			Help: "Thumbnails generated and uploaded",
		}, []string{"collection", "scale"}),
		generationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pregen_generation_errors_total",
			Help: "Records that failed to generate",
		}, []string{"collection"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pregen_generation_skipped_total",
			Help: "Records skipped because the journal already held them",
		}, []string{"collection"}),
		bytesGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "pregen_generated_bytes_total",
			Help: "Bytes of thumbnail data uploaded",
		}),
		itemDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pregen_generation_item_duration_seconds",
			Help:    "Time to download, resize and upload one record",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		storageRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pregen_storage_retries_total",
			Help: "Storage operations retried after a failure",
		}, []string{"op"}),
		storageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pregen_storage_failures_total",
			Help: "Storage operations that failed after all retries",
		}, []string{"op"}),
		lastRunTimestamp: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pregen_last_run_timestamp_seconds",
			Help: "Unix time a phase last finished",
		}, []string{"phase"}),
		eventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "pregen_events_published_total",
			Help: "Generation events published",
		}),
		eventPublishFails: f.NewCounter(prometheus.CounterOpts{
			Name: "pregen_event_publish_failures_total",
			Help: "Generation events that could not be published",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ImageScanned records one scanned original and its thumbnail scales.
func (m *Metrics) ImageScanned(collection string, scales []int) {
	if m == nil {
		return
	}
	m.imagesScanned.WithLabelValues(collection).Inc()
	for _, s := range scales {
		m.thumbnailsFound.WithLabelValues(collection, strconv.Itoa(s)).Inc()
	}
}

// CollectionCoverage sets the coverage gauge from a percentage.
func (m *Metrics) CollectionCoverage(collection string, percent float64) {
	if m == nil {
		return
	}
	m.coverage.WithLabelValues(collection).Set(percent / 100)
}

// ScanFinished records the scan duration and completion time.
func (m *Metrics) ScanFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Set(d.Seconds())
	m.lastRunTimestamp.WithLabelValues("scan").SetToCurrentTime()
}

// Generated records one successful thumbnail.
func (m *Metrics) Generated(collection string, scale, bytes int, d time.Duration) {
	if m == nil {
		return
	}
	m.generated.WithLabelValues(collection, strconv.Itoa(scale)).Inc()
	m.bytesGenerated.Add(float64(bytes))
	m.itemDuration.Observe(d.Seconds())
}

// GenerationFailed records one failed record.
func (m *Metrics) GenerationFailed(collection string) {
	if m == nil {
		return
	}
	m.generationErrors.WithLabelValues(collection).Inc()
}

// Skipped records one record skipped through the journal.
func (m *Metrics) Skipped(collection string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(collection).Inc()
}

// GenerateFinished records generation completion time.
func (m *Metrics) GenerateFinished() {
	if m == nil {
		return
	}
	m.lastRunTimestamp.WithLabelValues("generate").SetToCurrentTime()
}

// StorageRetry counts a retried storage operation.
func (m *Metrics) StorageRetry(op string) {
	if m == nil {
		return
	}
	m.storageRetries.WithLabelValues(op).Inc()
}

// StorageFailure counts a storage operation that exhausted its retries.
func (m *Metrics) StorageFailure(op string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(op).Inc()
}

// EventPublished counts a generation event outcome.
func (m *Metrics) EventPublished(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.eventPublishFails.Inc()
		return
	}
	m.eventsPublished.Inc()
}

// WriteTextfile writes all metrics in text exposition format to path,
// for the node-exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	MessagesDownloaded prometheus.Counter
	BytesDownloaded    prometheus.Counter
	FramesConverted    prometheus.Counter
	SpaceFilesWritten  prometheus.Counter
	SpaceFilesReused   prometheus.Counter
	DownloadErrors     prometheus.Counter
	RunInProgress      prometheus.Gauge

	HourDownloadDuration      prometheus.Histogram
	VariableTransposeDuration prometheus.Histogram
}

// NewMetrics creates and registers all ingest metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesDownloaded,
		m.BytesDownloaded,
		m.FramesConverted,
		m.SpaceFilesWritten,
		m.SpaceFilesReused,
		m.DownloadErrors,
		m.RunInProgress,
		m.HourDownloadDuration,
		m.VariableTransposeDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so parallel
// tests do not trip "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_ingest",
			Name:      "messages_downloaded_total",
			Help:      "GRIB messages fetched and decoded.",
		}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_ingest",
			Name:      "bytes_downloaded_total",
			Help:      "Compressed GRIB bytes fetched via ranged requests.",
		}),
		FramesConverted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_ingest",
			Name:      "frames_converted_total",
			Help:      "Frames that passed the semantic conversion pipeline.",
		}),
		SpaceFilesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_ingest",
			Name:      "space_files_written_total",
			Help:      "Per-hour space files written to the staging directory.",
		}),
		SpaceFilesReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_ingest",
			Name:      "space_files_reused_total",
			Help:      "Space files reused from a previous attempt via --skip-existing.",
		}),
		DownloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forecast_ingest",
			Name:      "download_errors_total",
			Help:      "Download attempts that exhausted retries.",
		}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forecast_ingest",
			Name:      "run_in_progress",
			Help:      "1 while a run is being ingested.",
		}),
		HourDownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forecast_ingest",
			Name:      "hour_download_duration_seconds",
			Help:      "Duration of one forecast hour's download across members.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		VariableTransposeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forecast_ingest",
			Name:      "variable_transpose_duration_seconds",
			Help:      "Duration of the space-to-time transposition per variable.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
	}
}

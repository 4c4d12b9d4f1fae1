// Package metrics provides Prometheus metrics for mirror runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	foldersDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivesync_folders_discovered_total",
			Help: "Total number of folders discovered by tree walks",
		},
	)

	listFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivesync_list_failures_total",
			Help: "Total number of folder listings that failed",
		},
		[]string{"stage"},
	)

	filesListed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivesync_files_listed_total",
			Help: "Total number of matching files listed",
		},
	)

	filesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivesync_files_dropped_total",
			Help: "Total number of files dropped by the duplicate filter",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivesync_downloads_total",
			Help: "Total number of download outcomes",
		},
		[]string{"status"},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivesync_bytes_downloaded_total",
			Help: "Total bytes written to the destination",
		},
	)

	downloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drivesync_download_duration_seconds",
			Help:    "Per-file download duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// FoldersDiscovered adds n discovered folders.
func FoldersDiscovered(n int) {
	foldersDiscovered.Add(float64(n))
}

// ListFailed records a failed folder listing in stage ("walk" or "list").
func ListFailed(stage string) {
	listFailures.WithLabelValues(stage).Inc()
}

// FilesListed adds n listed files.
func FilesListed(n int) {
	filesListed.Add(float64(n))
}

// FilesDropped adds n files removed by the duplicate filter.
func FilesDropped(n int) {
	filesDropped.Add(float64(n))
}

// RecordDownload records one download outcome.
// method is "export", "get" or "none" when no transfer happened.
func RecordDownload(status, method string, bytes int64, d time.Duration) {
	downloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		bytesDownloaded.Add(float64(bytes))
	}
	if method != "none" {
		downloadDuration.WithLabelValues(method).Observe(d.Seconds())
	}
}

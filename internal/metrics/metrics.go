// Package metrics exposes Prometheus counters for plugin execution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Enqueues counts successful Enqueue calls.
	Enqueues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selectpad_enqueues_total",
		Help: "Total select-and-pad launches by element type and device",
	}, []string{"dtype", "device"})

	// LaunchFailures counts Enqueue calls rejected before or during submission.
	LaunchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selectpad_launch_failures_total",
		Help: "Total select-and-pad launch failures by reason",
	}, []string{"reason"}) // "state", "shape", "buffer" or "stream"

	// SelectedRows counts rows written to outputs.
	SelectedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "selectpad_selected_rows_total",
		Help: "Total selected rows written to select-and-pad outputs",
	})

	// TruncatedRows counts selected rows dropped because a batch item
	// selected more than P rows.
	TruncatedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "selectpad_truncated_rows_total",
		Help: "Total selected rows dropped beyond the negotiated row bound",
	})

	// WorkspaceBytes observes the workspace size of each configuration.
	WorkspaceBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "selectpad_workspace_bytes",
		Help:    "Workspace bytes requested per plugin configuration",
		Buckets: prometheus.ExponentialBuckets(256, 4, 10), // 256B to ~64MiB
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

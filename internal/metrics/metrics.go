// Package metrics collects per-run counters for a conversion and can export
// them in the Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run holds the metrics of one conversion run.
type Run struct {
	registry *prometheus.Registry

	FramesWritten prometheus.Counter
	BytesWritten  *prometheus.CounterVec
	FrameWrite    prometheus.Histogram
	Failures      *prometheus.CounterVec
	Duration      prometheus.Gauge
}

// NewRun registers a fresh metric set.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		FramesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avs2yuv_frames_written_total",
			Help: "Total number of frames written to every sink.",
		}),
		BytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avs2yuv_bytes_written_total",
			Help: "Total number of bytes written, by sink, headers and frame markers included.",
		}, []string{"sink"}),
		FrameWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "avs2yuv_frame_write_seconds",
			Help:    "Time to fetch and write one frame to all sinks.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avs2yuv_run_failures_total",
			Help: "Failed runs, by error kind.",
		}, []string{"kind"}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avs2yuv_run_duration_seconds",
			Help: "Wall time of the run.",
		}),
	}
	r.registry.MustRegister(r.FramesWritten, r.BytesWritten, r.FrameWrite, r.Failures, r.Duration)
	return r
}

// ObserveFrame records one frame and the time it took.
func (r *Run) ObserveFrame(d time.Duration) {
	r.FramesWritten.Inc()
	r.FrameWrite.Observe(d.Seconds())
}

// AddBytes adds n bytes to sink's counter.
func (r *Run) AddBytes(sink string, n int64) {
	if n > 0 {
		r.BytesWritten.WithLabelValues(sink).Add(float64(n))
	}
}

// Fail records a failure of kind.
func (r *Run) Fail(kind string) {
	r.Failures.WithLabelValues(kind).Inc()
}

// Gatherer exposes the registry.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically writes the metrics to path.
func (r *Run) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

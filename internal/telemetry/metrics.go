package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpdatesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meadowd_updates_total",
			Help: "Total number of known updates by apply state",
		},
		[]string{"apply_state"},
	)

	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meadowd_downloads_total",
			Help: "Total number of package downloads by outcome",
		},
		[]string{"outcome"},
	)

	DownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meadowd_download_duration_seconds",
			Help:    "Time taken to download a package in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ApplyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meadowd_applies_total",
			Help: "Total number of apply attempts by outcome",
		},
		[]string{"outcome"},
	)

	ApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meadowd_apply_duration_seconds",
			Help:    "Time taken for a full apply pipeline run in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	QuiescenceWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meadowd_quiescence_wait_seconds",
			Help:    "Time spent waiting for the managed process to exit before apply",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meadowd_auth_attempts_total",
			Help: "Total number of device-login attempts by outcome",
		},
		[]string{"outcome"},
	)

	BrokerReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meadowd_broker_reconnects_total",
			Help: "Total number of broker reconnect attempts",
		},
	)

	ControlLoopState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meadowd_control_loop_state",
			Help: "Current control loop state (1 = active, indexed by state label)",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(UpdatesTotal)
	prometheus.MustRegister(DownloadsTotal)
	prometheus.MustRegister(DownloadDuration)
	prometheus.MustRegister(ApplyTotal)
	prometheus.MustRegister(ApplyDuration)
	prometheus.MustRegister(QuiescenceWaitDuration)
	prometheus.MustRegister(AuthAttemptsTotal)
	prometheus.MustRegister(BrokerReconnectsTotal)
	prometheus.MustRegister(ControlLoopState)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

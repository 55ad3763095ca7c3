package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts SOAP exchanges against WinRM endpoints
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winch_requests_total",
			Help: "Total number of WS-Management requests",
		},
		[]string{"status"},
	)

	// RequestDuration tracks SOAP exchange latency
	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "winch_request_duration_seconds",
			Help:    "WS-Management request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReceiveRetries counts receive requests reissued after an
	// OperationTimeout fault
	ReceiveRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "winch_receive_retries_total",
			Help: "Total number of receive requests retried after an operation timeout",
		},
	)

	// FaultsTotal counts WS-Management faults by fault code
	FaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winch_faults_total",
			Help: "Total number of WS-Management faults",
		},
		[]string{"code"},
	)

	// CommandsTotal counts remote commands by outcome
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winch_commands_total",
			Help: "Total number of remote commands executed",
		},
		[]string{"status"},
	)

	// CommandDuration tracks how long remote commands run
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "winch_command_duration_seconds",
			Help:    "Remote command duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// ShellsActive tracks currently open remote shells
	ShellsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "winch_shells_active",
			Help: "Number of open remote shells",
		},
	)

	// WatchRuns counts scheduled watch executions by outcome
	WatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winch_watch_runs_total",
			Help: "Total number of watch executions",
		},
		[]string{"status"},
	)
)

// RecordRequest records one SOAP exchange
func RecordRequest(status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(status).Inc()
	RequestDuration.Observe(duration.Seconds())
}

// RecordFault records a WS-Management fault by code
func RecordFault(code string) {
	FaultsTotal.WithLabelValues(code).Inc()
}

// RecordCommand records a finished remote command
func RecordCommand(status string, durationSeconds float64) {
	CommandsTotal.WithLabelValues(status).Inc()
	CommandDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordShellOpen increments the active shell gauge
func RecordShellOpen() {
	ShellsActive.Inc()
}

// RecordShellClose decrements the active shell gauge
func RecordShellClose() {
	ShellsActive.Dec()
}

// RecordWatchRun records a watch execution
func RecordWatchRun(status string) {
	WatchRuns.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

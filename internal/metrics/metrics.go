package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for cycle and request outcomes.
const (
	ResultSuccess    = "success"
	ResultAuthFailed = "auth_failed"
	ResultRetryLater = "retry_later"
	ResultError      = "error"
)

var (
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterbridge_cycles_total",
			Help: "Total number of coordinator refresh cycles by outcome.",
		},
		[]string{"result"},
	)
	cloudRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterbridge_cloud_requests_total",
			Help: "Total number of cloud API operations by outcome (after retries).",
		},
		[]string{"op", "result"},
	)
	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterbridge_retry_attempts_total",
			Help: "Individual cloud call attempts that failed and were retried.",
		},
		[]string{"op"},
	)
	plannedIntervalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meterbridge_planned_interval_seconds",
			Help: "Sleep interval planned after the most recent cycle.",
		},
	)
	metersDiscovered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meterbridge_meters_discovered",
			Help: "Number of meters in the current snapshot.",
		},
	)
)

func ObserveCycle(result string) {
	cyclesTotal.WithLabelValues(result).Inc()
}

func ObserveCloudRequest(op, result string) {
	cloudRequestsTotal.WithLabelValues(op, result).Inc()
}

func IncRetryAttempt(op string) {
	retryAttemptsTotal.WithLabelValues(op).Inc()
}

func SetPlannedInterval(d time.Duration) {
	plannedIntervalSeconds.Set(d.Seconds())
}

func SetMeterCount(n int) {
	metersDiscovered.Set(float64(n))
}

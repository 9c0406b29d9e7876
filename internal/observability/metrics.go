package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	requestsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smpctl",
			Subsystem: "smp",
			Name:      "requests_total",
			Help:      "Total SMP requests handed to the transport.",
		},
		[]string{"group", "op"},
	)
	completions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smpctl",
			Subsystem: "smp",
			Name:      "completions_total",
			Help:      "Total request completions delivered to callers.",
		},
		[]string{"outcome"},
	)
	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "smpctl",
			Subsystem: "smp",
			Name:      "inflight_requests",
			Help:      "Requests currently buffered awaiting ordered delivery.",
		},
	)
	transportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smpctl",
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Transport-level failures by kind.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestsSent, completions, inFlight, transportErrors)
	})
}

func RecordRequest(group, op string) {
	RegisterMetrics()
	requestsSent.WithLabelValues(group, op).Inc()
}

func RecordCompletion(failed bool) {
	RegisterMetrics()
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	completions.WithLabelValues(outcome).Inc()
}

func SetInFlight(n int) {
	RegisterMetrics()
	inFlight.Set(float64(n))
}

func RecordTransportError(kind string) {
	RegisterMetrics()
	transportErrors.WithLabelValues(kind).Inc()
}

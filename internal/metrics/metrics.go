// Package metrics exposes Prometheus collectors for cart mutations, activity
// sessions and text-generation calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cartOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "cart",
		Name:      "operations_total",
		Help:      "Cart mutations by operation and result",
	}, []string{"operation", "result"})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "activity_session",
		Name:      "transitions_total",
		Help:      "Activity session status transitions by target status",
	}, []string{"status"})

	reportFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "activity_session",
		Name:      "report_fallbacks_total",
		Help:      "Reports replaced by the fixed fallback after a generation or parse failure",
	})

	sessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "activity_session",
		Name:      "swept_total",
		Help:      "Stale sessions removed by the maintenance sweep",
	})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portal",
		Subsystem: "llm",
		Name:      "generation_duration_seconds",
		Help:      "Latency of text-generation calls",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider", "kind", "result"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// CartOperation records one cart mutation outcome.
func CartOperation(op string, err error) {
	cartOperations.WithLabelValues(op, result(err)).Inc()
}

// SessionTransition records a session entering status.
func SessionTransition(status string) {
	sessionTransitions.WithLabelValues(status).Inc()
}

func ReportFallback() {
	reportFallbacks.Inc()
}

func SessionsSwept(n int) {
	sessionsSwept.Add(float64(n))
}

// ObserveGeneration records the latency of a generation call started at start.
func ObserveGeneration(provider, kind string, start time.Time, err error) {
	generationDuration.WithLabelValues(provider, kind, result(err)).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

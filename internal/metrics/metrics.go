// Package metrics exposes Prometheus collectors for inference calls,
// session state and persistence.
package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	inferenceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Name:      "inference_requests_total",
			Help:      "Inference HTTP attempts per operation, model and outcome.",
		},
		[]string{"op", "model", "outcome"},
	)

	inferenceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Name:      "inference_latency_seconds",
			Help:      "Inference HTTP attempt latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"op", "outcome"},
	)

	inferenceFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "companion",
			Name:      "inference_fallbacks_total",
			Help:      "Generate calls retried against a fallback URL.",
		},
	)

	sessionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "companion",
			Name:      "session_status",
			Help:      "1 for the current connection status of each chat, 0 otherwise.",
		},
		[]string{"chat", "status"},
	)

	historyTurns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "companion",
			Name:      "history_turns",
			Help:      "Turns held in each conversation log.",
		},
		[]string{"chat"},
	)

	persistenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Name:      "persistence_errors_total",
			Help:      "Best-effort persistence writes that failed.",
		},
		[]string{"op"},
	)

	missions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Name:      "missions_total",
			Help:      "Missions finished per terminal status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Name:      "http_request_duration_seconds",
			Help:      "Gateway request latency per route, method and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "code"},
	)
)

// Statuses lists the label values used by session_status.
var Statuses = []string{"unknown", "connected", "disconnected", "error"}

// Collectors returns every collector of this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		inferenceRequests, inferenceLatency, inferenceFallbacks,
		sessionStatus, historyTurns, persistenceErrors, missions,
		httpRequests,
	}
}

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}

// ObserveInference records one HTTP attempt against the inference server.
func ObserveInference(op, model, outcome string, d time.Duration) {
	inferenceRequests.WithLabelValues(op, norm(model), norm(outcome)).Inc()
	inferenceLatency.WithLabelValues(op, norm(outcome)).Observe(d.Seconds())
}

// IncFallback counts a Generate call that moved to a fallback URL.
func IncFallback() {
	inferenceFallbacks.Inc()
}

// SetSessionStatus marks status as the current one for chat.
func SetSessionStatus(chat, status string) {
	status = norm(status)
	for _, s := range Statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		sessionStatus.WithLabelValues(chat, s).Set(v)
	}
}

// SetHistoryTurns records the size of a conversation log.
func SetHistoryTurns(chat string, n int) {
	historyTurns.WithLabelValues(chat).Set(float64(n))
}

// IncPersistenceError counts a failed best-effort write.
func IncPersistenceError(op string) {
	persistenceErrors.WithLabelValues(norm(op)).Inc()
}

// IncMission counts a mission that reached a terminal status.
func IncMission(status string) {
	missions.WithLabelValues(norm(status)).Inc()
}

// ObserveHTTP records one gateway request. route is the matched pattern,
// not the raw path.
func ObserveHTTP(route, method string, code int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Observe(d.Seconds())
}

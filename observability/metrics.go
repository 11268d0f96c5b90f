package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording HTTP API
// activity per route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total bridge API requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total bridge API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bridge",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for bridge API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// GatewayMetrics captures gateway transition outcomes, moved volume and
// proving progress.
type GatewayMetrics struct {
	transitions  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	volume       *prometheus.CounterVec
	provenHeight prometheus.Gauge
	rootCommits  prometheus.Counter

	mu      sync.Mutex
	highest uint64
}

// Gateway returns the singleton metrics registry for the gateway engine.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "gateway",
				Name:      "transitions_total",
				Help:      "Gateway operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bridge",
				Subsystem: "gateway",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution of gateway operations including state commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "gateway",
				Name:      "volume_total",
				Help:      "Token amount moved by completed flows, in base units.",
			}, []string{"flow"}),
			provenHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "bridge",
				Subsystem: "gateway",
				Name:      "proven_height",
				Help:      "Highest counterpart block height whose storage root was proven.",
			}),
			rootCommits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "consensus",
				Name:      "state_roots_committed_total",
				Help:      "Counterpart state roots accepted from the consensus feed.",
			}),
		}
		prometheus.MustRegister(
			gatewayRegistry.transitions,
			gatewayRegistry.latency,
			gatewayRegistry.volume,
			gatewayRegistry.provenHeight,
			gatewayRegistry.rootCommits,
		)
	})
	return gatewayRegistry
}

// Observe records one gateway operation. Errors are labelled by the outcome
// string the caller derives from the error class.
func (m *GatewayMetrics) Observe(operation string, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	operation = labelOperation(operation)
	if strings.TrimSpace(outcome) == "" {
		outcome = "success"
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordVolume adds amount to the volume counter of flow (stake, unstake,
// revert).
func (m *GatewayMetrics) RecordVolume(flow string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.volume.WithLabelValues(labelOperation(flow)).Add(bigToFloat(amount))
}

// RecordProvenHeight raises the proven height gauge. Lower heights are
// ignored.
func (m *GatewayMetrics) RecordProvenHeight(height uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if height <= m.highest {
		return
	}
	m.highest = height
	m.provenHeight.Set(float64(height))
}

// RecordRootCommit counts a state root accepted from consensus.
func (m *GatewayMetrics) RecordRootCommit() {
	if m == nil {
		return
	}
	m.rootCommits.Inc()
}

func labelOperation(op string) string {
	trimmed := strings.TrimSpace(op)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}

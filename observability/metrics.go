package observability

import (
	"fmt"
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

	consensusMetricsOnce sync.Once
	consensusRegistry    *consensusMetrics

	contractMetricsOnce sync.Once
	contractRegistry    *ContractMetrics

	mempoolMetricsOnce sync.Once
	mempoolRegistry    *MempoolMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gamebankcore",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gamebankcore",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "gamebankcore",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gamebankcore",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
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

// Observe records the outcome of a module request. The status code should be
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
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
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

type consensusMetrics struct {
	blockInterval   prometheus.Gauge
	headBlockNum    prometheus.Gauge
	irreversibleLag prometheus.Gauge
	applyLatency    *prometheus.HistogramVec
	forkSwitches    prometheus.Counter
	missedSlots     prometheus.Counter
}

// Consensus exposes the metrics registry for block-application instrumentation.
func Consensus() *consensusMetrics {
	consensusMetricsOnce.Do(func() {
		consensusRegistry = &consensusMetrics{
			blockInterval: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gamebankcore",
				Subsystem: "consensus",
				Name:      "block_interval_seconds",
				Help:      "Interval in seconds between the timestamps of consecutive committed blocks.",
			}),
			headBlockNum: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gamebankcore",
				Subsystem: "consensus",
				Name:      "head_block_number",
				Help:      "Block number of the current fork-tree head.",
			}),
			irreversibleLag: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gamebankcore",
				Subsystem: "consensus",
				Name:      "irreversible_lag_blocks",
				Help:      "Number of blocks between head and last irreversible block.",
			}),
			applyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "gamebankcore",
				Subsystem: "consensus",
				Name:      "apply_block_duration_seconds",
				Help:      "Latency distribution for applying a block to the object store.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
			forkSwitches: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gamebankcore",
				Subsystem: "consensus",
				Name:      "fork_switches_total",
				Help:      "Count of times the fork-tree head switched away from the previous best branch.",
			}),
			missedSlots: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gamebankcore",
				Subsystem: "consensus",
				Name:      "missed_slots_total",
				Help:      "Count of scheduled witness slots that produced no block.",
			}),
		}
		prometheus.MustRegister(
			consensusRegistry.blockInterval,
			consensusRegistry.headBlockNum,
			consensusRegistry.irreversibleLag,
			consensusRegistry.applyLatency,
			consensusRegistry.forkSwitches,
			consensusRegistry.missedSlots,
		)
	})
	return consensusRegistry
}

// RecordBlockInterval updates the block interval gauge with the supplied duration.
func (m *consensusMetrics) RecordBlockInterval(interval time.Duration) {
	if m == nil {
		return
	}
	seconds := interval.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.blockInterval.Set(seconds)
}

// RecordHead updates the head-block and irreversibility-lag gauges.
func (m *consensusMetrics) RecordHead(headNum, lastIrreversible uint64) {
	if m == nil {
		return
	}
	m.headBlockNum.Set(float64(headNum))
	if headNum >= lastIrreversible {
		m.irreversibleLag.Set(float64(headNum - lastIrreversible))
	}
}

// ObserveApplyBlock records how long applying one block took.
func (m *consensusMetrics) ObserveApplyBlock(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.applyLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordForkSwitch increments the fork-switch counter.
func (m *consensusMetrics) RecordForkSwitch() {
	if m == nil {
		return
	}
	m.forkSwitches.Inc()
}

// RecordMissedSlot increments the missed-slot counter.
func (m *consensusMetrics) RecordMissedSlot() {
	if m == nil {
		return
	}
	m.missedSlots.Inc()
}

// ContractMetrics tracks scripted-contract sandbox execution.
type ContractMetrics struct {
	calls     *prometheus.CounterVec
	stepsUsed *prometheus.HistogramVec
}

// Contracts returns the metrics registry for contract deploy/call execution.
func Contracts() *ContractMetrics {
	contractMetricsOnce.Do(func() {
		contractRegistry = &ContractMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gamebankcore",
				Subsystem: "contract",
				Name:      "invocations_total",
				Help:      "Count of contract deploy/call invocations segmented by outcome.",
			}, []string{"kind", "outcome"}),
			stepsUsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "gamebankcore",
				Subsystem: "contract",
				Name:      "steps_used",
				Help:      "Distribution of sandbox step-budget consumption per invocation.",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000},
			}, []string{"kind"}),
		}
		prometheus.MustRegister(contractRegistry.calls, contractRegistry.stepsUsed)
	})
	return contractRegistry
}

// RecordInvocation records a contract deploy or call outcome and its step cost.
func (m *ContractMetrics) RecordInvocation(kind string, steps uint64, err error) {
	if m == nil {
		return
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(kind, outcome).Inc()
	m.stepsUsed.WithLabelValues(kind).Observe(float64(steps))
}

// MempoolMetrics tracks pending-transaction pool pressure.
type MempoolMetrics struct {
	size     prometheus.Gauge
	rejected *prometheus.CounterVec
}

// Mempool returns the metrics registry for pending-transaction pool pressure.
func Mempool() *MempoolMetrics {
	mempoolMetricsOnce.Do(func() {
		mempoolRegistry = &MempoolMetrics{
			size: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "gamebankcore",
				Subsystem: "mempool",
				Name:      "pending_transactions",
				Help:      "Number of transactions currently held in the pending pool.",
			}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gamebankcore",
				Subsystem: "mempool",
				Name:      "rejected_total",
				Help:      "Count of transactions rejected at the pending-pool boundary, segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(mempoolRegistry.size, mempoolRegistry.rejected)
	})
	return mempoolRegistry
}

// SetSize updates the pending-pool size gauge.
func (m *MempoolMetrics) SetSize(n int) {
	if m == nil {
		return
	}
	m.size.Set(float64(n))
}

// RecordRejected increments the rejection counter for the supplied reason.
func (m *MempoolMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unspecified"
	}
	m.rejected.WithLabelValues(reason).Inc()
}

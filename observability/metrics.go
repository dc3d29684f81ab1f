package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type splitterMetrics struct {
	deposits       prometheus.Counter
	withdrawals    prometheus.Counter
	payoutFailures prometheus.Counter
	custody        prometheus.Gauge
	rpcRequests    *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
}

var (
	splitterOnce     sync.Once
	splitterRegistry *splitterMetrics
)

// Splitter returns the metrics registry tracking ledger activity. Collectors
// are registered once on the default Prometheus registry.
func Splitter() *splitterMetrics {
	splitterOnce.Do(func() {
		splitterRegistry = &splitterMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "splitvault",
				Subsystem: "ledger",
				Name:      "deposits_total",
				Help:      "Count of successful deposit-and-split operations.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "splitvault",
				Subsystem: "ledger",
				Name:      "withdrawals_total",
				Help:      "Count of successful withdrawals.",
			}),
			payoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "splitvault",
				Subsystem: "ledger",
				Name:      "payout_failures_total",
				Help:      "Count of value transfers rejected by the external payout primitive.",
			}),
			custody: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "splitvault",
				Subsystem: "ledger",
				Name:      "custody_units",
				Help:      "Value currently held in custody by the ledger.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "splitvault",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Count of JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "splitvault",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC handler latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			splitterRegistry.deposits,
			splitterRegistry.withdrawals,
			splitterRegistry.payoutFailures,
			splitterRegistry.custody,
			splitterRegistry.rpcRequests,
			splitterRegistry.rpcDuration,
		)
	})
	return splitterRegistry
}

// RecordDeposit increments the deposit counter.
func (m *splitterMetrics) RecordDeposit() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

// RecordWithdrawal increments the withdrawal counter.
func (m *splitterMetrics) RecordWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

// RecordPayoutFailure increments the payout failure counter.
func (m *splitterMetrics) RecordPayoutFailure() {
	if m == nil {
		return
	}
	m.payoutFailures.Inc()
}

// SetCustody publishes the current custody total. Values beyond float64
// precision saturate, which is acceptable for a monitoring gauge.
func (m *splitterMetrics) SetCustody(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	f, _ := new(big.Float).SetInt(total).Float64()
	m.custody.Set(f)
}

// RecordRPC tracks one JSON-RPC call.
func (m *splitterMetrics) RecordRPC(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(seconds)
}

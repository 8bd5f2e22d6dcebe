package minter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	AttemptsTotal    *prometheus.CounterVec
	AttemptDuration  *prometheus.HistogramVec
	WalletCallsTotal *prometheus.CounterVec
	WalletCallTime   *prometheus.HistogramVec
	AttemptsInFlight prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minter_attempts_total",
			Help: "Mint attempts by network and outcome",
		}, []string{"network", "status", "kind"}),
		AttemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minter_attempt_duration_seconds",
			Help:    "Duration of mint attempts",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"network", "status"}),
		WalletCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minter_wallet_calls_total",
			Help: "Wallet connector calls by operation and result",
		}, []string{"op", "result"}),
		WalletCallTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minter_wallet_call_duration_seconds",
			Help:    "Duration of wallet connector calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		AttemptsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "minter_attempts_in_flight",
			Help: "Mint attempts currently running",
		}),
	}
}

func (m *Metrics) observeWalletCall(op WalletOp, err *WalletError, elapsed time.Duration) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = err.Kind.String()
	}

	m.WalletCallsTotal.WithLabelValues(string(op), result).Inc()
	m.WalletCallTime.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

func (m *Metrics) attemptStarted() {
	if m == nil {
		return
	}
	m.AttemptsInFlight.Inc()
}

func (m *Metrics) attemptFinished(a *Attempt) {
	if m == nil {
		return
	}

	m.AttemptsInFlight.Dec()
	m.AttemptsTotal.WithLabelValues(string(a.Network), a.Status.String(), a.Kind.String()).Inc()
	m.AttemptDuration.WithLabelValues(string(a.Network), a.Status.String()).Observe(a.FinishedAt.Sub(a.StartedAt).Seconds())
}

package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// FaucetMetrics records dispenser activity: claim attempts by outcome, total
// rewards paid, and RPC handler latency.
type FaucetMetrics struct {
	Taps        *prometheus.CounterVec
	RewardsPaid prometheus.Counter
	Latency     *prometheus.HistogramVec
}

var (
	faucetOnce sync.Once
	faucetReg  *FaucetMetrics
)

// Faucet returns the lazily-initialised faucet metrics, registered against
// the default prometheus registry exactly once.
func Faucet() *FaucetMetrics {
	faucetOnce.Do(func() {
		faucetReg = &FaucetMetrics{
			Taps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tapfaucet",
				Subsystem: "dispenser",
				Name:      "taps_total",
				Help:      "Claim attempts segmented by outcome.",
			}, []string{"outcome"}),
			RewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tapfaucet",
				Subsystem: "dispenser",
				Name:      "rewards_paid_total",
				Help:      "Successful reward payouts.",
			}),
			Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tapfaucet",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(faucetReg.Taps, faucetReg.RewardsPaid, faucetReg.Latency)
	})
	return faucetReg
}

// ObserveTap bumps the outcome counter for a claim attempt.
func (m *FaucetMetrics) ObserveTap(outcome string) {
	if m == nil {
		return
	}
	m.Taps.WithLabelValues(outcome).Inc()
}

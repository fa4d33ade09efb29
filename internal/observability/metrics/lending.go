package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics counts protocol operations and degraded outcomes.
type LendingMetrics struct {
	operations       *prometheus.CounterVec
	degraded         *prometheus.CounterVec
	verificationFail prometheus.Counter
	benefitClaims    *prometheus.CounterVec
	oracleStale      prometheus.Counter
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nftlend_operations_total",
				Help: "Count of protocol operations by name and outcome.",
			}, []string{"operation", "outcome"}),
			degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nftlend_degraded_total",
				Help: "Count of degraded completions by kind (partial repayment, rerouted payment, interest fallback).",
			}, []string{"kind"}),
			verificationFail: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nftlend_collateral_verification_failed_total",
				Help: "Counter-offer acceptances aborted by stale collateral.",
			}),
			benefitClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nftlend_benefit_claims_total",
				Help: "Benefit claims forwarded by escrows, by success.",
			}, []string{"success"}),
			oracleStale: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "nftlend_oracle_stale_total",
				Help: "Price lookups rejected as stale.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.degraded,
			lendingRegistry.verificationFail,
			lendingRegistry.benefitClaims,
			lendingRegistry.oracleStale,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *LendingMetrics) ObserveDegraded(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.degraded.WithLabelValues(kind).Inc()
}

func (m *LendingMetrics) ObserveVerificationFailed() {
	if m == nil {
		return
	}
	m.verificationFail.Inc()
}

func (m *LendingMetrics) ObserveBenefitClaim(success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.benefitClaims.WithLabelValues(label).Inc()
}

func (m *LendingMetrics) ObserveOracleStale() {
	if m == nil {
		return
	}
	m.oracleStale.Inc()
}

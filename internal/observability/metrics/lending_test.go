package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLending_Singleton(t *testing.T) {
	assert.Same(t, Lending(), Lending())
}

func TestLending_Counters(t *testing.T) {
	m := Lending()

	before := testutil.ToFloat64(m.operations.WithLabelValues("repay_loan", "error"))
	m.ObserveOperation("repay_loan", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("repay_loan", "error")))

	before = testutil.ToFloat64(m.degraded.WithLabelValues("unknown"))
	m.ObserveDegraded("")
	assert.Equal(t, before+1, testutil.ToFloat64(m.degraded.WithLabelValues("unknown")))

	before = testutil.ToFloat64(m.benefitClaims.WithLabelValues("true"))
	m.ObserveBenefitClaim(true)
	assert.Equal(t, before+1, testutil.ToFloat64(m.benefitClaims.WithLabelValues("true")))
}

func TestLending_NilSafe(t *testing.T) {
	var m *LendingMetrics
	m.ObserveOperation("x", nil)
	m.ObserveDegraded("x")
	m.ObserveVerificationFailed()
	m.ObserveBenefitClaim(false)
	m.ObserveOracleStale()
}

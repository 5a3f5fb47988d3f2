package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTrade("none", true, time.Second, 10)
		m.RecordSubmission()
		m.RecordSession("success")
		m.RecordQuoteRequest("paid", "quote", "ok")
		m.RecordQuoteCacheHit()
		m.RecordRateLimitWait("solana_rpc", time.Millisecond)
		m.UpdatePool(1, 1)
	})
}

func TestRecordTrade(t *testing.T) {
	m := NewMetrics("test")
	m.RecordTrade("none", true, 2*time.Second, 150_000_000)
	m.RecordTrade("price_impact", false, time.Second, 90_000_000)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("price_impact")))
	assert.Equal(t, 150_000_000.0, testutil.ToFloat64(m.LamportsSpent))
}

func TestSeparateRegistries(t *testing.T) {
	a := NewMetrics("test")
	b := NewMetrics("test")
	a.RecordSubmission()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SubmissionsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SubmissionsTotal))
}

func TestHandler(t *testing.T) {
	m := NewMetrics("test")
	m.RecordSession("partial")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `test_trading_sessions_total{outcome="partial"} 1`))
}

package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.ReconcileTotal.WithLabelValues("miss").Inc()
	m.SaveTotal.WithLabelValues("success").Inc()
	m.RecoveryTotal.WithLabelValues("ai").Inc()
	m.DetectorRequests.WithLabelValues("error").Inc()
	m.ReconcileDuration.Observe(0.002)
	m.DetectorDuration.Observe(0.7)
	m.EffectiveSetSize.Observe(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `heatwatch_reconcile_total{cache="miss"} 1`)
	assert.Contains(t, body, `heatwatch_annotation_saves_total{result="success"} 1`)
	assert.Contains(t, body, `heatwatch_annotation_recoveries_total{destination="ai"} 1`)
	assert.Contains(t, body, `heatwatch_detector_requests_total{result="error"} 1`)
}

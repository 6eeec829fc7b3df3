package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRequestCountAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	handler := m.Middleware("/timers")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/timers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	metric := &dto.Metric{}
	counter, err := m.HTTPRequestsTotal.GetMetricWithLabelValues(http.MethodPost, "/timers", "201")
	require.NoError(t, err)
	require.NoError(t, counter.Write(metric))
	assert.Equal(t, float64(1), metric.GetCounter().GetValue())
}

func TestMiddlewareDefaultsStatusToOKWhenNotWritten(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	handler := m.Middleware("/healthz")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	metric := &dto.Metric{}
	counter, err := m.HTTPRequestsTotal.GetMetricWithLabelValues(http.MethodGet, "/healthz", "200")
	require.NoError(t, err)
	require.NoError(t, counter.Write(metric))
	assert.Equal(t, float64(1), metric.GetCounter().GetValue())
}

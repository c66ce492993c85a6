package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-ledger/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("ledger", []float64{10, 1}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/health/ready"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))

	again := obs.NewHTTPMetrics("ledger", nil, registry)
	require.Same(t, metrics.ReqTotal, again.ReqTotal)
}

func TestRequestLoggerIncludesRouteParams(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Get("/api/v1/students/{studentID}/ledger", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/stu-42/ledger", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "/api/v1/students/{studentID}/ledger", entry["route"])
	require.Equal(t, "stu-42", entry["student_id"])
	require.EqualValues(t, 200, entry["status"])
}

func TestDomainMetricsObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("ledger_test", registry)

	obs.ObservePaymentRecorded("month", 22000)
	obs.ObservePaymentRecorded("month", 22000)
	obs.ObserveReconciliation(false, 2)

	require.Equal(t, 2.0, testutil.ToFloat64(obs.LedgerPaymentsRecordedTotal.WithLabelValues("month")))
	require.Equal(t, 44000.0, testutil.ToFloat64(obs.LedgerPaymentAmountTotal.WithLabelValues("month")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.LedgerReconciliationsTotal.WithLabelValues("false")))
	require.Equal(t, 2.0, testutil.ToFloat64(obs.LedgerUnattributedPaymentsTotal))
}

func TestRoutePatternVisibleToOuterLayers(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("route_test", nil, registry)

	r := chi.NewRouter()
	r.Use(obs.RoutePatternMiddleware)
	r.Get("/api/v1/classes/{classe}/ledger", func(w http.ResponseWriter, r *http.Request) {})

	handler := obs.RoutePatternMiddleware(obs.HTTPObs{Metrics: metrics}.Middleware(r))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/classes/CM1/ledger", nil))

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/classes/{classe}/ledger", "200")))
}

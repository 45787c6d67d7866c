package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/cassiomorais/coursepay/internal/infrastructure/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)

	r := chi.NewRouter()
	r.Use(Metrics(metrics))
	r.Get("/api/v1/payments/{chargeID}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	for _, id := range []string{"chrg_1", "chrg_2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+id+"/status", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
	}

	assert.Equal(t, float64(2), promtest.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/payments/{chargeID}/status", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var foundDuration bool
	for _, mf := range families {
		if mf.GetName() == "test_http_request_duration_seconds" {
			foundDuration = true
		}
	}
	assert.True(t, foundDuration, "http_request_duration metric should be recorded")
}

func TestMetrics_StatusCodes(t *testing.T) {
	tests := []int{http.StatusOK, http.StatusCreated, http.StatusPaymentRequired, http.StatusConflict, http.StatusServiceUnavailable}

	for _, status := range tests {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			metrics := observability.NewMetrics("test", prometheus.NewRegistry())

			r := chi.NewRouter()
			r.Use(Metrics(metrics))
			r.Post("/api/v1/checkout", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))

			assert.Equal(t, status, w.Code)
			assert.Equal(t, float64(1), promtest.ToFloat64(
				metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/api/v1/checkout", strconv.Itoa(status))))
		})
	}
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(Metrics(metrics))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, float64(1), promtest.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))
}

func TestMetrics_WithoutRouter(t *testing.T) {
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	handler := Metrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), promtest.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "200")))
}

func TestStatusWriter_WriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

	sw.WriteHeader(http.StatusCreated)

	assert.Equal(t, http.StatusCreated, sw.statusCode)
	assert.Equal(t, http.StatusCreated, w.Code)
}

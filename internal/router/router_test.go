package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pitch-booking/internal/observability/metrics"
)

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRegisterRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewSchedulingMetrics(reg).ObserveConflict()

	e := echo.New()
	RegisterRoutes(e, reg)

	rec := get(e, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(e, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pitch_scheduling_overlap_rejections_total")
}

func TestRegisterRoutesWithoutGatherer(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, nil)
	assert.Equal(t, http.StatusNotFound, get(e, "/metrics").Code)
}

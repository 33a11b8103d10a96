package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	metrics, err := newHTTPMetrics(registry, Config{})
	require.NoError(t, err)

	router := gin.New()
	router.Use(metrics.GinMiddleware())
	router.GET("/v1/orders/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orders/1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orders/2", nil))

	got := testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodGet, "/v1/orders/:id", "404"))
	assert.Equal(t, float64(2), got)

	_, err = newHTTPMetrics(registry, Config{})
	assert.Error(t, err)
}

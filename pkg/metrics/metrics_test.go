package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", Handler())

	counter := httpRequests.WithLabelValues(http.MethodGet, "/ping", http.StatusText(http.StatusNoContent))
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}

func TestMiddlewareLabelsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	counter := httpRequests.WithLabelValues(http.MethodGet, UnmatchedRoute, http.StatusText(http.StatusNotFound))
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/wp-login.php", "/api/v2/orders", "/x"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}
	assert.Equal(t, before+3, testutil.ToFloat64(counter))

	raw := httpRequests.WithLabelValues(http.MethodGet, "/x", http.StatusText(http.StatusNotFound))
	assert.Zero(t, testutil.ToFloat64(raw), "request paths are never used as labels")
}

package metrics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sources of adopted or rejected order lists.
const (
	SourceBroadcast = "broadcast"
	SourceStorage   = "storage"
	SourceFocus     = "focus"
)

// UnmatchedRoute labels requests that matched no route.
const UnmatchedRoute = "unmatched"

var (
	OrdersAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_orders_added_total",
			Help: "Orders created by this process",
		},
	)

	StatusUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_status_updates_total",
			Help: "Status changes applied by this process",
		},
		[]string{"status"},
	)

	SyncAdopted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_sync_adopted_total",
			Help: "Order lists adopted from other processes",
		},
		[]string{"source"},
	)

	SyncRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_sync_rejected_total",
			Help: "Stale order lists rejected by the conflict policy",
		},
		[]string{"source"},
	)

	StoreRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_store_restored_total",
			Help: "Resyncs that rewrote a stale store entry with the local snapshot",
		},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)
)

func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := float64(time.Since(start).Milliseconds())
		path := c.FullPath()
		if path == "" {
			path = UnmatchedRoute
		}

		httpRequests.WithLabelValues(c.Request.Method, path,
			http.StatusText(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

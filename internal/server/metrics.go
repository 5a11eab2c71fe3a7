package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	connectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchparty_ws_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchparty_broadcasts_total",
			Help: "Total change notifications sent to websocket clients",
		},
		[]string{"type"},
	)

	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchparty_store_errors_total",
			Help: "Total failed store operations",
		},
		[]string{"operation"},
	)

	advances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchparty_advances_total",
			Help: "Total server side queue advance attempts",
		},
		[]string{"result"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchparty_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// instrument records request metrics and logs each request at debug level.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
		log.WithFields(log.Fields{
			"method":    r.Method,
			"route":     route,
			"status":    status,
			"duration":  elapsed,
			"requestId": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

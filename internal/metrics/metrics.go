package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homepresence_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homepresence_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "homepresence_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	statusWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homepresence_status_writes_total",
		Help: "Status record writes by presence kind.",
	}, []string{"kind"})

	fanoutInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homepresence_fanout_invocations_total",
		Help: "Fan-out invocations by result.",
	}, []string{"result"})

	pushDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homepresence_push_deliveries_total",
		Help: "Per-target push delivery outcomes.",
	}, []string{"outcome"})

	fanoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "homepresence_fanout_duration_seconds",
		Help:    "Histogram of fan-out invocation latencies.",
		Buckets: prometheus.DefBuckets,
	})

	reportOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homepresence_agent_reports_total",
		Help: "Agent report outcomes.",
	}, []string{"outcome"})
)

// Fan-out results.
const (
	FanoutNoop        = "noop"
	FanoutNoFriends   = "no_friends"
	FanoutNoTargets   = "no_targets"
	FanoutDispatched  = "dispatched"
	FanoutTransportKO = "transport_failure"
)

// Middleware records request metrics per chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// the pattern is only complete once routing finished
			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveStatusWrite(kind string) {
	statusWritesTotal.WithLabelValues(kind).Inc()
}

func ObserveFanout(result string, start time.Time) {
	fanoutInvocationsTotal.WithLabelValues(result).Inc()
	fanoutDuration.Observe(time.Since(start).Seconds())
}

func ObservePushDeliveries(success, failure int) {
	pushDeliveriesTotal.WithLabelValues("success").Add(float64(success))
	pushDeliveriesTotal.WithLabelValues("failure").Add(float64(failure))
}

func ObserveReport(outcome string) {
	reportOutcomesTotal.WithLabelValues(outcome).Inc()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

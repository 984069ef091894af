package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	backendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_orders_backend_requests_total",
			Help: "Backend calls made through the gateway, by outcome",
		},
		[]string{"method", "resource", "outcome"},
	)

	backendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_orders_backend_request_duration_ms",
			Help:    "Duration of backend calls in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3200},
		},
		[]string{"method", "resource"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_orders_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	workflowActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_orders_workflow_actions_total",
			Help: "Workflow actions by outcome",
		},
		[]string{"action", "outcome"},
	)
)

// Resource reduces a backend path to its first segment so ids never become
// label values: "/ordre-paiement/12/soumettre" → "ordre-paiement".
func Resource(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(path, "/?"); i >= 0 {
		path = path[:i]
	}
	return path
}

// ObserveBackend records one gateway call
func ObserveBackend(method, path, outcome string, elapsed time.Duration) {
	resource := Resource(path)
	backendRequests.WithLabelValues(method, resource, outcome).Inc()
	backendDuration.WithLabelValues(method, resource).Observe(float64(elapsed.Milliseconds()))
}

// ObserveAction records the outcome of a workflow action
func ObserveAction(action, outcome string) {
	workflowActions.WithLabelValues(action, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts served requests
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
	})
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

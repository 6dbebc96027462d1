package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
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

	checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_results_total",
			Help: "Checkout attempts by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders committed, one per seller per checkout",
		},
		[]string{"gateway"},
	)

	paymentAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_calls_total",
			Help: "Calls made to payment gateways",
		},
		[]string{"gateway", "operation", "outcome"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notifications that could not be delivered after retries",
		},
		[]string{"kind"},
	)

	outboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events written to the broker",
		},
		[]string{"event_type", "outcome"},
	)

	sessionsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_recovered_total",
			Help: "Paid checkouts closed by the recovery loop",
		},
		[]string{"outcome"},
	)

	commitRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "order_commit_conflicts_total",
			Help: "Order transactions retried because of a write conflict",
		},
	)
)

// Middleware records request counts and latency keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := float64(time.Since(start).Milliseconds())
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

func CheckoutResult(stage, outcome string) {
	checkouts.WithLabelValues(stage, outcome).Inc()
}

func OrdersCreated(gateway string, n int) {
	ordersCreated.WithLabelValues(gateway).Add(float64(n))
}

func PaymentCall(gateway, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	paymentAttempts.WithLabelValues(gateway, operation, outcome).Inc()
}

func NotificationFailed(kind string) {
	notificationFailures.WithLabelValues(kind).Inc()
}

func CommitConflict() {
	commitRetries.Inc()
}

func OutboxPublished(eventType string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	outboxPublished.WithLabelValues(eventType, outcome).Inc()
}

func SessionRecovered(outcome string) {
	sessionsRecovered.WithLabelValues(outcome).Inc()
}

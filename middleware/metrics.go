package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	reconcileOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_outcomes_total",
			Help: "Payment reconciliation outcomes per provider",
		},
		[]string{"provider", "outcome"},
	)

	signatureRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signature_rejects_total",
			Help: "Gateway callbacks rejected for invalid signatures",
		},
		[]string{"provider"},
	)

	amountDiscrepancyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_amount_discrepancy_total",
			Help: "Payments accepted with an amount above the order total",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(reconcileOutcomesTotal)
	prometheus.MustRegister(signatureRejectsTotal)
	prometheus.MustRegister(amountDiscrepancyTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordReconcileOutcome(provider, outcome string) {
	reconcileOutcomesTotal.WithLabelValues(provider, outcome).Inc()
}

func RecordSignatureReject(provider string) {
	signatureRejectsTotal.WithLabelValues(provider).Inc()
}

func RecordAmountDiscrepancy(provider string) {
	amountDiscrepancyTotal.WithLabelValues(provider).Inc()
}

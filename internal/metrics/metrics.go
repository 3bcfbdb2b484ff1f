package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redemption outcomes.
const (
	ResultMarked      = "marked"
	ResultRejected    = "rejected"
	ResultNotEnrolled = "not_enrolled"
)

var (
	otpIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_otp_issued_total",
		Help: "One-time codes generated by teachers.",
	})

	otpRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_otp_redemptions_total",
		Help: "Code submissions by students, by outcome.",
	}, []string{"result"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attendance_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// OTPIssued counts one generated code.
func OTPIssued() { otpIssued.Inc() }

// OTPRedeemed counts one code submission with its outcome.
func OTPRedeemed(result string) { otpRedemptions.WithLabelValues(result).Inc() }

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

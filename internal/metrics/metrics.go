// Package metrics exposes Prometheus collectors for HTTP traffic and the
// exam session lifecycle.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "path"},
	)

	SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_sessions_started_total",
		Help: "Exam sessions started",
	})

	SessionsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_sessions_submitted_total",
		Help: "Exam sessions submitted and scored",
	})

	SessionsTerminated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_sessions_terminated_total",
		Help: "Exam sessions terminated by an exam author",
	})

	// SessionsExpired is labelled by how the expiry was detected: "lazy" on
	// access or "sweep" by the background job.
	SessionsExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_sessions_expired_total",
			Help: "Exam sessions expired after their deadline",
		},
		[]string{"source"},
	)

	AnswersSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_answers_saved_total",
		Help: "Answers stored or overwritten",
	})
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			SessionsStarted,
			SessionsSubmitted,
			SessionsTerminated,
			SessionsExpired,
			AnswersSaved,
		)
	})
}

// Middleware records request counts and latencies by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		RequestCounter.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

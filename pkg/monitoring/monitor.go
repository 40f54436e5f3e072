package monitoring

import (
	"strconv"
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
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SubmitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_submissions_total",
			Help: "Quiz submissions by outcome",
		},
		[]string{"outcome"}, // manual, forced, failed
	)

	AutosaveFlushCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_autosave_flushes_total",
			Help: "Autosave buffer flushes by result",
		},
		[]string{"result"}, // ok, empty, failed
	)

	CaptureCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_captures_total",
			Help: "Audio captures by outcome",
		},
		[]string{"outcome"}, // uploaded, upload_failed, discarded
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiz_active_sessions",
			Help: "Live take-quiz sessions",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SubmitCounter)
	prometheus.MustRegister(AutosaveFlushCounter)
	prometheus.MustRegister(CaptureCounter)
	prometheus.MustRegister(ActiveSessions)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

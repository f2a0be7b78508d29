// Package metrics provides Prometheus metrics for the review server.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the review server.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SessionsActive       prometheus.Gauge
	SavesTotal           *prometheus.CounterVec
	CodeDecisionsTotal   *prometheus.CounterVec
	ICDSearchesTotal     prometheus.Counter
	PDFSearchesTotal     prometheus.Counter
	HighlightsShownTotal prometheus.Counter
	PagesPreloadedTotal  prometheus.Counter

	ServerStartTime time.Time
}

// New creates and registers all metrics on the given registerer. Tests pass a
// fresh registry so repeated construction does not panic on duplicate
// registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{ServerStartTime: time.Now()}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "review_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.HTTPRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "review_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	m.SessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "review_sessions_active",
			Help: "Number of review sessions currently open",
		},
	)

	m.SavesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_saves_total",
			Help: "Total number of session save attempts",
		},
		[]string{"status"},
	)

	m.CodeDecisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_code_decisions_total",
			Help: "Total number of code decisions made by reviewers",
		},
		[]string{"action"},
	)

	m.ICDSearchesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "review_icd_searches_total",
			Help: "Total number of ICD code searches executed",
		},
	)

	m.PDFSearchesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "review_pdf_searches_total",
			Help: "Total number of document text searches executed",
		},
	)

	m.HighlightsShownTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "review_highlights_shown_total",
			Help: "Total number of evidence highlights displayed",
		},
	)

	m.PagesPreloadedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "review_pages_preloaded_total",
			Help: "Total number of page images preloaded",
		},
	)

	return m
}

// Default creates metrics on the default Prometheus registry.
func Default() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// Middleware returns echo middleware that records request counts, durations,
// and in-flight gauge. The route template (not the raw URL) is used as the
// path label to keep cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				if httpErr, ok := err.(*echo.HTTPError); ok {
					status = httpErr.Code
				}
			}

			m.HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// Handler returns the /metrics scrape handler.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// RecordSave records a save attempt outcome ("ok" or "error").
func (m *Metrics) RecordSave(status string) {
	m.SavesTotal.WithLabelValues(status).Inc()
}

// RecordDecision records a reviewer action (accept, reject, reorder, ...).
func (m *Metrics) RecordDecision(action string) {
	m.CodeDecisionsTotal.WithLabelValues(action).Inc()
}

// Package metrics provides Prometheus metrics for the records API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	AuditWriteErrors prometheus.Counter
	ConsentDenials   *prometheus.CounterVec
	MergesPerformed  prometheus.Counter
	TokensIssued     prometheus.Counter
	TokensRevoked    prometheus.Counter
}

// New creates and registers all metrics on a private registry so tests
// can construct more than one instance.
func New() *Metrics {
	return newWith(prometheus.DefaultRegisterer)
}

func newWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route"}),
		AuditWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_write_errors_total",
			Help: "Audit events that could not be persisted",
		}),
		ConsentDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_denials_total",
			Help: "Record accesses denied by the consent gate, by reason",
		}, []string{"reason"}),
		MergesPerformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patient_merges_total",
			Help: "Duplicate patient records merged",
		}),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Access tokens issued",
		}),
		TokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_tokens_revoked_total",
			Help: "Access tokens revoked",
		}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.AuditWriteErrors,
		m.ConsentDenials,
		m.MergesPerformed,
		m.TokensIssued,
		m.TokensRevoked,
	)

	return m
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			m.HTTPRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// auth
	LoginAttempts *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	Uploads       *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "userhub",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "userhub",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				// password hashing dominates the auth routes
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "userhub",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "userhub",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "userhub",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "userhub",
				Subsystem: "auth",
				Name:      "login_attempts_total",
				Help:      "Login attempts by result.",
			},
			[]string{"result"}, // result=success|invalid|error
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "userhub",
				Subsystem: "auth",
				Name:      "registrations_total",
				Help:      "Account creations by origin and result.",
			},
			[]string{"origin", "result"}, // origin=self|admin, result=created|conflict|error
		),
		Uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "userhub",
				Subsystem: "profile",
				Name:      "picture_uploads_total",
				Help:      "Profile picture uploads by result.",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(p.RequestsTotal, p.RequestsDuration, p.InFlight, p.DbQueryDuration, p.DbErrorsTotal, p.LoginAttempts, p.Registrations, p.Uploads)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}

// CountLogin is nil-safe so handlers can run without metrics wired.
func (p *Prom) CountLogin(result string) {
	if p == nil {
		return
	}
	p.LoginAttempts.WithLabelValues(result).Inc()
}

func (p *Prom) CountRegistration(origin, result string) {
	if p == nil {
		return
	}
	p.Registrations.WithLabelValues(origin, result).Inc()
}

func (p *Prom) CountUpload(result string) {
	if p == nil {
		return
	}
	p.Uploads.WithLabelValues(result).Inc()
}

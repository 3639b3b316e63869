package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the service's Prometheus collectors on its own registry.
// It implements auth.Observer.
type Recorder struct {
	registry *prometheus.Registry

	otpRequests       *prometheus.CounterVec
	otpVerifications  *prometheus.CounterVec
	sessionsCreated   prometheus.Counter
	sessionsDestroyed prometheus.Counter
	rowsPurged        *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a Recorder with all collectors registered
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		otpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tiretrack_otp_requests_total",
				Help: "OTP requests by outcome",
			},
			[]string{"outcome"},
		),
		otpVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tiretrack_otp_verifications_total",
				Help: "OTP verifications by outcome",
			},
			[]string{"outcome"},
		),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiretrack_sessions_created_total",
			Help: "Sessions opened after a successful verification",
		}),
		sessionsDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiretrack_sessions_destroyed_total",
			Help: "Sessions ended by logout",
		}),
		rowsPurged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tiretrack_expired_rows_purged_total",
				Help: "Expired rows removed by the cleanup job",
			},
			[]string{"table"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.otpRequests,
		r.otpVerifications,
		r.sessionsCreated,
		r.sessionsDestroyed,
		r.rowsPurged,
		r.httpRequestsTotal,
		r.httpRequestDuration,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) OTPRequested(outcome string) { r.otpRequests.WithLabelValues(outcome).Inc() }

func (r *Recorder) OTPVerified(outcome string) { r.otpVerifications.WithLabelValues(outcome).Inc() }

func (r *Recorder) SessionCreated() { r.sessionsCreated.Inc() }

func (r *Recorder) SessionDestroyed() { r.sessionsDestroyed.Inc() }

// RowsPurged counts rows removed from table by the cleanup job.
func (r *Recorder) RowsPurged(table string, n int64) {
	r.rowsPurged.WithLabelValues(table).Add(float64(n))
}

// Middleware records request count and duration per chi route pattern.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		duration := time.Since(start)

		path := "undefined"
		if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		r.httpRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
		r.httpRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
	})
}

// Package metrics holds the Prometheus collectors for downloads, streamed
// bytes, issued grants and HTTP latency.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/community-admin/pkg/community"
)

const namespace = "community_admin"

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	Downloads       *prometheus.CounterVec
	StreamedBytes   *prometheus.CounterVec
	Grants          *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Download attempts by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		StreamedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streamed_bytes_total",
				Help:      "Bytes written to download responses",
			},
			[]string{"kind"},
		),
		Grants: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signed_url_grants_total",
				Help:      "Signed URL grants issued, by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Downloads,
		m.StreamedBytes,
		m.Grants,
		m.RequestDuration,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveDownload(kind string, err error) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(kind, Outcome(err)).Inc()
}

func (m *Metrics) AddStreamedBytes(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.StreamedBytes.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ObserveGrant(method string, err error) {
	if m == nil {
		return
	}
	m.Grants.WithLabelValues(method, Outcome(err)).Inc()
}

// Middleware records request latency labelled with the chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

// Outcome buckets an error into a low-cardinality label
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, community.ErrNotFound), errors.Is(err, community.ErrObjectNotFound):
		return OutcomeNotFound
	case errors.Is(err, community.ErrInvalidInput), errors.Is(err, community.ErrInvalidExpiry), errors.Is(err, community.ErrInvalidQuery):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

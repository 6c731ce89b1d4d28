// Package telemetry holds the Prometheus metrics for member sync, visit
// ingestion and claim aggregation, plus the HTTP request middleware.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "casesync"

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	syncRuns     *prometheus.CounterVec
	syncRows     *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	syncLastUnix prometheus.Gauge
	refreshQueue *prometheus.CounterVec

	assignmentLookups *prometheus.CounterVec
	visitOutcomes     *prometheus.CounterVec
	notifyFailures    prometheus.Counter
	claimUpserts      *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers every metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		syncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "members",
			Name: "sync_runs_total", Help: "Member sync runs by mode and result.",
		}, []string{"mode", "result"}),
		syncRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "members",
			Name: "sync_rows_total", Help: "Rows written by member syncs.",
		}, []string{"mode"}),
		syncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "members",
			Name: "sync_duration_seconds", Help: "Member sync duration.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),
		syncLastUnix: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "members",
			Name: "last_complete_sync_timestamp_seconds", Help: "Unix time of the last complete sync.",
		}),
		refreshQueue: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "members",
			Name: "refresh_events_total", Help: "Background refresh lifecycle events.",
		}, []string{"event"}),
		assignmentLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assignments",
			Name: "lookups_total", Help: "Assignment resolutions by path taken.",
		}, []string{"path"}),
		visitOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "visits",
			Name: "submissions_total", Help: "Visit submissions by outcome.",
		}, []string{"outcome"}),
		notifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "visits",
			Name: "notify_failures_total", Help: "Flagged-visit notifications that failed.",
		}),
		claimUpserts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "claims",
			Name: "upserts_total", Help: "Visit-to-claim folds by result.",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http",
			Name: "requests_total", Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http",
			Name: "request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SyncFinished(mode string, rows int, complete bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "complete"
	if !complete {
		result = "partial"
	}
	m.syncRuns.WithLabelValues(mode, result).Inc()
	m.syncRows.WithLabelValues(mode).Add(float64(rows))
	m.syncDuration.WithLabelValues(mode).Observe(d.Seconds())
	if complete {
		m.syncLastUnix.SetToCurrentTime()
	}
}

func (m *Metrics) SyncFailed(mode string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(mode, "failed").Inc()
}

// RefreshEvent counts refresher activity: queued, started, retried, skipped, failed.
func (m *Metrics) RefreshEvent(event string) {
	if m == nil {
		return
	}
	m.refreshQueue.WithLabelValues(event).Inc()
}

func (m *Metrics) AssignmentLookup(path string) {
	if m == nil {
		return
	}
	m.assignmentLookups.WithLabelValues(path).Inc()
}

func (m *Metrics) VisitOutcome(outcome string) {
	if m == nil {
		return
	}
	m.visitOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

func (m *Metrics) ClaimUpserted(result string) {
	if m == nil {
		return
	}
	m.claimUpserts.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency keyed by the route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

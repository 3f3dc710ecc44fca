// Package metrics exposes Prometheus collectors for the DanceLink services.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dancelink"

// Metrics holds the collectors for one process. Each instance owns its
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	applications  *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
	messagesSent  prometheus.Counter
	messagesRead  prometheus.Counter
	uploads       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	feedSignals   *prometheus.CounterVec
	roleCache     *prometheus.CounterVec
	jobRuns       *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),
		applications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applications",
			Name:      "submitted_total",
			Help:      "Application submissions by outcome.",
		}, []string{"outcome"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applications",
			Name:      "status_changes_total",
			Help:      "Application status changes by new status.",
		}, []string{"status"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "messages_sent_total",
			Help:      "Messages appended to application threads.",
		}),
		messagesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "messages_marked_read_total",
			Help:      "Incoming messages marked read.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profiles",
			Name:      "uploads_total",
			Help:      "Profile media uploads by kind and outcome.",
		}, []string{"kind", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Status-change emails by status and outcome.",
		}, []string{"status", "outcome"}),
		feedSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "signals_total",
			Help:      "Realtime change signals delivered to subscribers.",
		}, []string{"table"}),
		roleCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "role_lookups_total",
			Help:      "Role cache lookups by result.",
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled maintenance job runs.",
		}, []string{"job", "success"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.applications,
		m.statusChanges,
		m.messagesSent,
		m.messagesRead,
		m.uploads,
		m.notifications,
		m.feedSignals,
		m.roleCache,
		m.jobRuns,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler exposes the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one handled request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	method = strings.ToUpper(method)
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordApplication records a submission attempt; outcome is "created",
// "duplicate" or "error".
func (m *Metrics) RecordApplication(outcome string) {
	m.applications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordStatusChange(status string) {
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordMessageSent() { m.messagesSent.Inc() }

func (m *Metrics) RecordMessagesRead(n int) { m.messagesRead.Add(float64(n)) }

func (m *Metrics) RecordUpload(kind string, ok bool) {
	m.uploads.WithLabelValues(kind, outcome(ok)).Inc()
}

func (m *Metrics) RecordNotification(status string, ok bool) {
	m.notifications.WithLabelValues(status, outcome(ok)).Inc()
}

func (m *Metrics) RecordFeedSignal(table string) {
	m.feedSignals.WithLabelValues(table).Inc()
}

// RecordRoleLookup records a cache hit or miss.
func (m *Metrics) RecordRoleLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.roleCache.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordJobRun(job string, success bool) {
	if job == "" {
		job = "unknown"
	}
	m.jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

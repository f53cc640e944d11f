// package metrics records provider, linking and migration activity for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Track outcomes reported by the migration engine
const (
	TrackAdded        = "added"
	TrackUnmatched    = "unmatched"
	TrackAddFailed    = "add_failed"
	TrackSearchFailed = "search_failed"
	TrackDryRun       = "dry_run"
)

// Recorder receives measurements from the gateways, the link coordinator, the migration engine and the HTTP layer.
type Recorder interface {
	ObserveProviderRequest(provider, method string, status int, duration time.Duration)
	IncProviderRetry(provider, reason string)
	IncTokenRefresh(provider, outcome string)
	IncLinkTransition(provider, phase string)
	IncMigrationTrack(outcome string)
	ObserveHTTPRequest(route string, status int, duration time.Duration)
}

// Prometheus implements [Recorder] on its own registry.
type Prometheus struct {
	registry         *prometheus.Registry
	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerRetries  *prometheus.CounterVec
	tokenRefreshes   *prometheus.CounterVec
	linkTransitions  *prometheus.CounterVec
	migrationTracks  *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewPrometheus creates a [Prometheus] recorder with Go runtime and process collectors registered.
func NewPrometheus() *Prometheus {
	m := &Prometheus{
		registry: prometheus.NewRegistry(),

		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musiclink_provider_requests_total",
			Help: "Total number of provider API requests",
		}, []string{"provider", "method", "status"}),

		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "musiclink_provider_request_duration_seconds",
			Help:    "Provider API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),

		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musiclink_provider_retries_total",
			Help: "Total number of retried provider requests",
		}, []string{"provider", "reason"}),

		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musiclink_token_refreshes_total",
			Help: "Total number of access token refresh attempts",
		}, []string{"provider", "outcome"}),

		linkTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musiclink_link_transitions_total",
			Help: "Total number of account link state transitions",
		}, []string{"provider", "phase"}),

		migrationTracks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musiclink_migration_tracks_total",
			Help: "Total number of migrated tracks by outcome",
		}, []string{"outcome"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musiclink_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "musiclink_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.providerRequests,
		m.providerDuration,
		m.providerRetries,
		m.tokenRefreshes,
		m.linkTransitions,
		m.migrationTracks,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Prometheus) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Prometheus) ObserveProviderRequest(provider, method string, status int, duration time.Duration) {
	m.providerRequests.WithLabelValues(provider, method, statusLabel(status)).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Prometheus) IncProviderRetry(provider, reason string) {
	m.providerRetries.WithLabelValues(provider, reason).Inc()
}

func (m *Prometheus) IncTokenRefresh(provider, outcome string) {
	m.tokenRefreshes.WithLabelValues(provider, outcome).Inc()
}

func (m *Prometheus) IncLinkTransition(provider, phase string) {
	m.linkTransitions.WithLabelValues(provider, phase).Inc()
}

func (m *Prometheus) IncMigrationTrack(outcome string) {
	m.migrationTracks.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) ObserveHTTPRequest(route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(route, statusLabel(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// statusLabel buckets HTTP codes; 0 means no response was received.
func statusLabel(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		if code == http.StatusTooManyRequests {
			return strconv.Itoa(code)
		}
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) ObserveProviderRequest(_, _ string, _ int, _ time.Duration) {}
func (Noop) IncProviderRetry(_, _ string)                              {}
func (Noop) IncTokenRefresh(_, _ string)                               {}
func (Noop) IncLinkTransition(_, _ string)                             {}
func (Noop) IncMigrationTrack(_ string)                                {}
func (Noop) ObserveHTTPRequest(_ string, _ int, _ time.Duration)       {}

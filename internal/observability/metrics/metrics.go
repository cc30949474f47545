package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datingapp_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datingapp_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "datingapp_http_requests_in_flight",
		Help: "Requests currently being served",
	})

	httpResponseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datingapp_http_response_size_bytes",
		Help:    "Size of HTTP response bodies",
		Buckets: prometheus.ExponentialBuckets(64, 4, 7),
	}, []string{"route"})

	registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datingapp_registrations_total",
		Help: "Profile registration attempts by result",
	}, []string{"result"})

	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datingapp_logins_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	relationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datingapp_relation_transitions_total",
		Help: "Relation state changes by kind (liked, matched, approved, rejected, deleted)",
	}, []string{"kind"})

	likeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datingapp_like_conflict_retries_total",
		Help: "Like attempts retried after a concurrent write on the same pair",
	})

	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datingapp_profile_cache_requests_total",
		Help: "Profile cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	outboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datingapp_outbox_published_total",
		Help: "Outbox events handed to the broker by result",
	}, []string{"result"})

	outboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "datingapp_outbox_backlog",
		Help: "Unpublished events seen in the last outbox poll",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveRegistration counts a registration attempt
func ObserveRegistration(result string) {
	registrations.WithLabelValues(result).Inc()
}

// ObserveLogin counts a login attempt
func ObserveLogin(result string) {
	logins.WithLabelValues(result).Inc()
}

// ObserveRelationTransition counts a relation state change
func ObserveRelationTransition(kind string) {
	relationTransitions.WithLabelValues(kind).Inc()
}

// ObserveLikeRetry counts a like retried after a pair conflict
func ObserveLikeRetry() {
	likeRetries.Inc()
}

// ObserveCache counts a profile cache lookup
func ObserveCache(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}

// ObserveOutboxPublish counts an outbox publish attempt
func ObserveOutboxPublish(result string) {
	outboxPublished.WithLabelValues(result).Inc()
}

// SetOutboxBacklog sets the backlog gauge
func SetOutboxBacklog(count int) {
	if count < 0 {
		count = 0
	}
	outboxBacklog.Set(float64(count))
}

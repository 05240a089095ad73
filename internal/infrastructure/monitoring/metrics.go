// Package monitoring provides the Prometheus metrics, zap logger and
// OpenTelemetry tracing used by the key store.
package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/keystore/internal/domain/service"
)

const namespace = "keystore"

// Metrics manages the Prometheus metrics.
type Metrics struct {
	KeyGenerations       *prometheus.CounterVec
	KeyGenerationLatency prometheus.Histogram
	PublicKeyReads       *prometheus.CounterVec
	KeyDeletions         prometheus.Counter
	AccessDenied         *prometheus.CounterVec
	StorageErrors        *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  *prometheus.GaugeVec
}

var _ service.KeyMetrics = (*Metrics)(nil)

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		KeyGenerations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_generations_total",
				Help:      "Total number of keypair generations.",
			},
			[]string{"result"},
		),
		KeyGenerationLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "key_generation_duration_seconds",
				Help:      "Time spent generating a keypair.",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		PublicKeyReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "public_key_reads_total",
				Help:      "Total number of public key reads.",
			},
			[]string{"key"},
		),
		KeyDeletions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_deletions_total",
				Help:      "Total number of key delete requests served.",
			},
		),
		AccessDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_denied_total",
				Help:      "Total number of refused requests.",
			},
			[]string{"reason"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of repository failures.",
			},
			[]string{"operation"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_active_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
	}
}

func (m *Metrics) RecordKeyGeneration(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.KeyGenerations.WithLabelValues(result).Inc()
	m.KeyGenerationLatency.Observe(duration.Seconds())
}

func (m *Metrics) RecordPublicKeyRead(existing bool) {
	key := "generated"
	if existing {
		key = "existing"
	}
	m.PublicKeyReads.WithLabelValues(key).Inc()
}

func (m *Metrics) RecordKeyDeletion() {
	m.KeyDeletions.Inc()
}

func (m *Metrics) RecordAccessDenied(reason string) {
	m.AccessDenied.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordStorageError(operation string) {
	m.StorageErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) ActiveRequestsInc(route, method string) {
	m.HTTPActiveRequests.WithLabelValues(method, route).Inc()
}

func (m *Metrics) ActiveRequestsDec(route, method string) {
	m.HTTPActiveRequests.WithLabelValues(method, route).Dec()
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

//Personal.AI order the ending

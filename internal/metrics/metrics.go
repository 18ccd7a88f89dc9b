// Package metrics exposes Prometheus collectors for the gateway connection,
// checkpoint persistence and the API response caches.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// guard their calls.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "votestream"

// Metrics holds every collector registered by the client.
type Metrics struct {
	framesReceived     *prometheus.CounterVec
	protocolErrors     prometheus.Counter
	reconnectAttempts  prometheus.Counter
	connected          prometheus.Gauge
	checkpointFailures prometheus.Counter
	cacheRequests      *prometheus.CounterVec
	cacheWrites        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil registerer returns a nil *Metrics.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "frames_received_total",
			Help:      "Classified gateway frames by event name",
		}, []string{"event"}),

		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "protocol_errors_total",
			Help:      "Inbound frames dropped because they did not match the frame schema",
		}),

		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnection attempts",
		}),

		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connected",
			Help:      "1 while a gateway session is open",
		}),

		checkpointFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "persist_failures_total",
			Help:      "Failed writes of the resumption marker",
		}),

		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by API and result",
		}, []string{"api", "result"}),

		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Cache fills by API",
		}, []string{"api"}),

		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Entries removed after mutating calls",
		}, []string{"api"}),

		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Rate-limit responses received from the remote API",
		}, []string{"api"}),
	}

	err := errors.Join(
		register(reg, &m.framesReceived),
		register(reg, &m.protocolErrors),
		register(reg, &m.reconnectAttempts),
		register(reg, &m.connected),
		register(reg, &m.checkpointFailures),
		register(reg, &m.cacheRequests),
		register(reg, &m.cacheWrites),
		register(reg, &m.cacheInvalidations),
		register(reg, &m.rateLimited),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// register adds *c to reg. When an equal collector is already registered,
// *c is replaced by it so both instances record into the same series.
func register[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("registering collector: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("registering collector: existing collector has type %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// FrameReceived counts one classified frame.
func (m *Metrics) FrameReceived(event string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(event).Inc()
}

// ProtocolError counts one dropped frame.
func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

// ReconnectAttempt counts one scheduled reconnect.
func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// SetConnected flips the connected gauge.
func (m *Metrics) SetConnected(open bool) {
	if m == nil {
		return
	}
	if open {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// CheckpointFailure counts one failed marker write.
func (m *Metrics) CheckpointFailure() {
	if m == nil {
		return
	}
	m.checkpointFailures.Inc()
}

// RateLimited counts one rate-limit response for api.
func (m *Metrics) RateLimited(api string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(api).Inc()
}

// CacheRecorder returns a recorder that labels cache activity with api.
// It satisfies cache.Recorder.
func (m *Metrics) CacheRecorder(api string) *CacheRecorder {
	if m == nil {
		return nil
	}
	return &CacheRecorder{m: m, api: api}
}

// CacheRecorder adapts Metrics to the cache package's Recorder interface.
type CacheRecorder struct {
	m   *Metrics
	api string
}

func (r *CacheRecorder) Hit() {
	if r == nil {
		return
	}
	r.m.cacheRequests.WithLabelValues(r.api, "hit").Inc()
}

func (r *CacheRecorder) Miss() {
	if r == nil {
		return
	}
	r.m.cacheRequests.WithLabelValues(r.api, "miss").Inc()
}

func (r *CacheRecorder) Set() {
	if r == nil {
		return
	}
	r.m.cacheWrites.WithLabelValues(r.api).Inc()
}

func (r *CacheRecorder) Invalidate() {
	if r == nil {
		return
	}
	r.m.cacheInvalidations.WithLabelValues(r.api).Inc()
}

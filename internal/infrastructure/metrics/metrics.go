package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "servicehub"

// Metrics holds the process collectors. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	pushEvents     *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	authRecoveries *prometheus.CounterVec
	cacheEntries   *prometheus.GaugeVec
	sessions       prometheus.Gauge
	wsClients      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		pushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "push_events_total",
			Help:      "Push events received per collection, operation and merge result.",
		}, []string{"collection", "operation", "result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetches_total",
			Help:      "Authoritative fetches per cache and outcome.",
		}, []string{"cache", "result"}),
		authRecoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "recoveries_total",
			Help:      "Refresh-and-retry attempts after an authorization failure.",
		}, []string{"result"}),
		cacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entities currently held per cache, summed over sessions.",
		}, []string{"cache"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "sessions",
			Help:      "Signed-in sessions hosted by the gateway.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
	}

	m.Registry.MustRegister(
		m.pushEvents,
		m.fetches,
		m.authRecoveries,
		m.cacheEntries,
		m.sessions,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) PushEvent(collection, operation string, applied bool) {
	if m == nil {
		return
	}
	result := "ignored"
	if applied {
		result = "applied"
	}
	m.pushEvents.WithLabelValues(collection, operation, result).Inc()
}

func (m *Metrics) Fetch(cache string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) AuthRecovery(recovered bool) {
	if m == nil {
		return
	}
	result := "expired"
	if recovered {
		result = "refreshed"
	}
	m.authRecoveries.WithLabelValues(result).Inc()
}

// CacheDelta adjusts the entry gauge of cache by delta.
func (m *Metrics) CacheDelta(cache string, delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.cacheEntries.WithLabelValues(cache).Add(float64(delta))
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.wsClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.wsClients.Dec()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's collectors. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	LinkConnected    prometheus.Gauge
	LinkStateChanges *prometheus.CounterVec
	EventsSent       *prometheus.CounterVec
	EventsReceived   *prometheus.CounterVec
	DashboardPushes  *prometheus.CounterVec
	BackupsCreated   prometheus.Counter
}

// New registers the frontdesk collectors on a private registry, along with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		LinkConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frontdesk_link_connected",
			Help: "1 when the doctor link is live (transport up and doctor present)",
		}),
		LinkStateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_link_state_changes_total",
			Help: "Link state transitions by target state",
		}, []string{"state"}),
		EventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_events_sent_total",
			Help: "Outbound socket events by name and result",
		}, []string{"event", "result"}),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_events_received_total",
			Help: "Inbound socket events by name",
		}, []string{"event"}),
		DashboardPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_dashboard_pushes_total",
			Help: "Dashboard push attempts by result",
		}, []string{"result"}),
		BackupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontdesk_backups_created_total",
			Help: "Backup files written",
		}),
	}
	reg.MustRegister(
		m.LinkConnected,
		m.LinkStateChanges,
		m.EventsSent,
		m.EventsReceived,
		m.DashboardPushes,
		m.BackupsCreated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetLinkState(state string, connected bool) {
	if m == nil {
		return
	}
	m.LinkStateChanges.WithLabelValues(state).Inc()
	if connected {
		m.LinkConnected.Set(1)
	} else {
		m.LinkConnected.Set(0)
	}
}

func (m *Metrics) EventSent(event string, ok bool) {
	if m == nil {
		return
	}
	m.EventsSent.WithLabelValues(event, result(ok)).Inc()
}

func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) DashboardPush(ok bool) {
	if m == nil {
		return
	}
	m.DashboardPushes.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) BackupCreated() {
	if m == nil {
		return
	}
	m.BackupsCreated.Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

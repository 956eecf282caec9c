package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetLinkState("live", true)
	m.EventSent("message", true)
	m.EventReceived("new-message")
	m.DashboardPush(false)
	m.BackupCreated()
	assert.Nil(t, m.Registry())
}

func TestLinkState(t *testing.T) {
	m := New()
	m.SetLinkState("live", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinkConnected))

	m.SetLinkState("transport_only", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LinkConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinkStateChanges.WithLabelValues("live")))
}

func TestEventCounters(t *testing.T) {
	m := New()
	m.EventSent("message", true)
	m.EventSent("message", true)
	m.EventSent("file:data", false)
	m.EventReceived("new-message")

	expected := `
		# HELP frontdesk_events_sent_total Outbound socket events by name and result
		# TYPE frontdesk_events_sent_total counter
		frontdesk_events_sent_total{event="file:data",result="error"} 1
		frontdesk_events_sent_total{event="message",result="ok"} 2
	`
	require.NoError(t, testutil.CollectAndCompare(m.EventsSent, strings.NewReader(expected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsReceived.WithLabelValues("new-message")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.DashboardPush(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `frontdesk_dashboard_pushes_total{result="ok"} 1`)
}

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordsLabels(t *testing.T) {
	m := New()

	m.PushEvent("services", "create", true)
	m.PushEvent("services", "create", false)
	m.PushEvent("services", "create", true)
	m.Fetch("listings", errors.New("offline"))
	m.AuthRecovery(true)
	m.CacheDelta("listings", 3)
	m.CacheDelta("listings", -1)
	m.SessionOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pushEvents.WithLabelValues("services", "create", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushEvents.WithLabelValues("services", "create", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("listings", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authRecoveries.WithLabelValues("refreshed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheEntries.WithLabelValues("listings")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.PushEvent("services", "update", true)
		m.Fetch("listings", nil)
		m.AuthRecovery(false)
		m.CacheDelta("listings", 1)
		m.SessionOpened()
		m.SessionClosed()
		m.ClientConnected()
		m.ClientDisconnected()
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.SessionOpened()
	rec := httptest.NewRecorder()

	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "servicehub_gateway_sessions 1")
}

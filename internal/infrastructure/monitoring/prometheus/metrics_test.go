package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionCounters(t *testing.T) {
	m := New()

	m.ObserveExtraction("ok", 0.02)
	m.ObserveExtraction("ok", 0.05)
	m.ObserveExtraction("error", 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.extractions.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.extractions.WithLabelValues("error")))
}

func TestEntryAndEventCounters(t *testing.T) {
	m := New()

	m.AddEntries("HIGH", 2)
	m.AddEntries("LOW", 1)
	m.AddReminderEvents(10)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.entriesExtracted.WithLabelValues("HIGH")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.entriesExtracted.WithLabelValues("LOW")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.reminderEvents))
}

func TestDispatchCounters(t *testing.T) {
	m := New()

	m.AddDispatched(3)
	m.AddDispatchFailures(1)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.dispatched))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dispatchFailures))
}

func TestHTTPInstrumentation(t *testing.T) {
	m := New()

	m.ObserveHTTPRequest("POST", "/api/v1/extractions", 201, 25*time.Millisecond)
	m.ObserveHTTPRequest("POST", "/api/v1/extractions", 201, 40*time.Millisecond)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/v1/extractions", "201")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveExtraction("ok", 0.01)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "prescripto_extractions_total"))
	assert.True(t, strings.Contains(body, `status="ok"`))
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.FragmentsWritten(5)
	m.FragmentsWritten(0)
	m.Retry("batch_put")
	m.Retry("batch_put")
	m.FileUploaded(true)
	m.FileUploaded(false)
	m.Settlement("settled")
	m.Conversion("pdf")

	assert.Equal(t, 5.0, testutil.ToFloat64(m.fragments))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues("batch_put")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("settled")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FragmentsWritten(3)
		m.Retry("put")
		m.FileUploaded(true)
		m.Settlement("timed_out")
		m.Conversion("text")
		m.Archive(false)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.FragmentsWritten(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "printrelay_fragments_written_total 2")
}

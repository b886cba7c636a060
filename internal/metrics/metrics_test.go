package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Frame()
	m.Frame()
	m.Skip("malformed")
	m.Observation("tcp", "new_contact")
	m.Flushed(12, 3*time.Millisecond)
	m.FlushFailed()
	m.Rollover()
	m.ExportFailed("nats")
	m.TableSizes(3, 4, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skips.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.observations.WithLabelValues("tcp", "new_contact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.flushedRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rollovers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportErrors.WithLabelValues("nats")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.statEntries))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Frame()
		m.Skip("x")
		m.Observation("udp", "ignored")
		m.Flushed(1, time.Second)
		m.FlushFailed()
		m.Rollover()
		m.ExportFailed("x")
		m.TableSizes(1, 1, 1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Frame()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "scansentry_frames_total 1")
}

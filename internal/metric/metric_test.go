package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/siflow/pipe"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()
	var rec pipe.StatsRecorder = r

	rec.Inc("ts_sdtd", "split_update")
	rec.Inc("ts_sdtd", "split_update")
	rec.Inc("ts_psi", "discontinuity")
	rec.Set("ts_sdtd", "services", 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Events.WithLabelValues("ts_sdtd", "split_update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Events.WithLabelValues("ts_psi", "discontinuity")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.Gauges.WithLabelValues("ts_sdtd", "services")))
}

func TestRecorderGather(t *testing.T) {
	r := NewRecorder()
	r.Inc("ts_check", "sync_loss")

	families, err := r.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["siflow_pipe_events_total"])
	assert.True(t, names["go_goroutines"], "runtime collector should be registered")
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.Inc("ts_sdtd", "ready")
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `siflow_pipe_events_total{event="ready",pipe="ts_sdtd"} 1`)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	require.NoError(t, metrics.Track("session:sweep").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("session:sweep").End(boom), boom)
	metrics.AddItems("session:sweep", 4)
	metrics.AddItems("session:sweep", 0)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("session:sweep", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("session:sweep", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("session:sweep")))
	require.Equal(t, 4.0, testutil.ToFloat64(metrics.items.WithLabelValues("session:sweep")))
}

func TestNilMetricsTrackerIsNoop(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("x").End(boom), boom)
	metrics.AddItems("x", 3)
}

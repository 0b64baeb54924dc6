package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordJob(t *testing.T) {
	reader := metric.NewManualReader()
	obs, err := newWithReader("ican-workers-test", reader)
	require.NoError(t, err)
	defer obs.Shutdown(context.Background())

	obs.RecordJob(context.Background(), "cast-vote", "completed", 12*time.Millisecond)
	obs.RecordJob(context.Background(), "cast-vote", "failed", 3*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
		if m.Name == "jobs.processed" {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			assert.Equal(t, int64(2), total)
		}
	}
	assert.True(t, names["jobs.processed"])
	assert.True(t, names["jobs.duration"])
}

func TestNilObservabilityIsSafe(t *testing.T) {
	var obs *Observability
	assert.NotPanics(t, func() {
		obs.RecordJob(context.Background(), "x", "completed", time.Second)
	})
	assert.NoError(t, obs.Shutdown(context.Background()))
}

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ImageScanned("c", []int{200})
		m.CollectionCoverage("c", 50)
		m.ScanFinished(time.Second)
		m.Generated("c", 200, 10, time.Millisecond)
		m.GenerationFailed("c")
		m.Skipped("c")
		m.GenerateFinished()
		m.StorageRetry("download")
		m.StorageFailure("download")
		m.EventPublished(nil)
	})
	assert.NoError(t, m.WriteTextfile("/nonexistent/metrics.prom"))
	assert.Nil(t, m.Registry())
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New()
	m.ImageScanned("c1", []int{100, 200})
	m.ImageScanned("c1", nil)
	m.Generated("c1", 200, 1000, 10*time.Millisecond)
	m.Generated("c1", 200, 500, 20*time.Millisecond)
	m.GenerationFailed("c2")
	m.EventPublished(nil)
	m.EventPublished(errors.New("broker down"))
	m.CollectionCoverage("c1", 50)

	assert.InDelta(t, 2, testutil.ToFloat64(m.imagesScanned.WithLabelValues("c1")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.thumbnailsFound.WithLabelValues("c1", "200")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.generated.WithLabelValues("c1", "200")), 0)
	assert.InDelta(t, 1500, testutil.ToFloat64(m.bytesGenerated), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.generationErrors.WithLabelValues("c2")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.eventsPublished), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.eventPublishFails), 0)
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.coverage.WithLabelValues("c1")), 0.0001)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	t.Parallel()

	m := New()
	m.ScanFinished(1500 * time.Millisecond)

	path := filepath.Join(t.TempDir(), "pregen.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "pregen_scan_duration_seconds 1.5"), string(data))
}

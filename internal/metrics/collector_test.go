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

func TestCollectorCounts(t *testing.T) {
	t.Parallel()

	c := NewCollector("mindmap")
	c.FetchCompleted(true)
	c.FetchCompleted(true)
	c.FetchCompleted(false)
	c.RunCompleted("success", 2*time.Second)
	c.RunCompleted("no_content", time.Second)
	c.SnapshotStored()
	c.ObserveHTTP(http.MethodGet, "/api/health", http.StatusOK, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Fetches.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PipelineRuns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SnapshotsStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/health", "200")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	t.Parallel()

	a := NewCollector("mindmap")
	b := NewCollector("mindmap")
	a.SnapshotStored()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SnapshotsStored))
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	c := NewCollector("mindmap")
	c.SnapshotStored()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mindmap_snapshots_stored_total 1")
}

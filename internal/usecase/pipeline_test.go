package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MindMapService/internal/config"
	"MindMapService/internal/domain"
	"MindMapService/internal/embedder"
	"MindMapService/internal/infrastructure/storage"
	"MindMapService/internal/layout"
	"MindMapService/internal/logging"
	"MindMapService/internal/similarity"
)

type fakeSource struct {
	records []domain.SourceRecord
	err     error
}

func (f fakeSource) Records(context.Context) ([]domain.SourceRecord, error) {
	return f.records, f.err
}

// fakeFetcher treats records whose URL contains "fail" as failures and uses the title as text.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) FetchAll(_ context.Context, records []domain.SourceRecord) (domain.AcquisitionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	res := domain.AcquisitionResult{}
	for _, r := range records {
		if strings.Contains(r.URL, "fail") {
			res.Skipped = append(res.Skipped, domain.SkippedSource{Source: r, Reason: "http status 404 Not Found"})
			continue
		}
		text := r.Title + " article body"
		res.Contents = append(res.Contents, domain.ScrapedContent{Source: r, Text: text, Length: len(text)})
	}
	return res, nil
}

// tableBackend returns a fixed vector per text prefix.
type tableBackend struct {
	vectors map[string][]float64
	err     error
}

func (b tableBackend) Name() string { return "table" }

func (b tableBackend) Info() embedder.Info {
	return embedder.Info{Name: "table", Model: "fixture", Dimensions: 3}
}

func (b tableBackend) Encode(_ context.Context, texts []string) ([][]float64, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = b.vectors[strings.Fields(text)[0]]
	}
	return out, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
	stored   int
}

func (o *recordingObserver) RunCompleted(status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) SnapshotStored() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stored++
}

func threeVectors() map[string][]float64 {
	y := 0.01 / math.Sqrt(0.19)
	return map[string][]float64{
		"raft":  {1, 0, 0},
		"paxos": {0.9, math.Sqrt(0.19), 0},
		"bread": {0.1, y, math.Sqrt(1 - 0.01 - y*y)},
	}
}

func testSettings() Settings {
	return Settings{
		Embedding:      embedder.Options{BatchSize: 2, Normalize: true},
		Graph:          similarity.Options{Threshold: 0.5, TopK: 5, MaxEdges: 100},
		Clustering:     config.ClusteringConfig{Method: "kmeans", Clusters: 2, Seed: 42, Restarts: 10, MaxIterations: 300},
		Layout:         layout.Options{Seed: 42},
		ComputeWorkers: 2,
	}
}

type fixture struct {
	pipeline *Pipeline
	store    *storage.MemoryStore
	fetcher  *fakeFetcher
	observer *recordingObserver
}

func newFixture(backend embedder.Backend, source fakeSource) fixture {
	f := fixture{
		store:    storage.NewMemoryStore(),
		fetcher:  &fakeFetcher{},
		observer: &recordingObserver{},
	}
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	f.pipeline = NewPipeline(PipelineDeps{
		Source:   source,
		Fetcher:  f.fetcher,
		Backend:  backend,
		Store:    f.store,
		Observer: f.observer,
		Logger:   logging.Discard(),
		Settings: testSettings(),
		Now:      func() time.Time { return created },
		NewID:    func() string { return "fixed-id" },
	})
	return f
}

var threeRecords = []domain.SourceRecord{
	{Title: "raft", URL: "https://example.com/raft"},
	{Title: "paxos", URL: "https://example.com/paxos"},
	{Title: "gone", URL: "https://example.com/fail"},
	{Title: "bread", URL: "https://example.com/bread"},
}

func TestProcessBuildsAndStoresSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(tableBackend{vectors: threeVectors()}, fakeSource{})
	res, err := f.pipeline.Process(context.Background(), threeRecords, Options{})
	require.NoError(t, err)

	snap := res.Snapshot
	assert.Equal(t, "fixed-id", snap.ID)
	require.Len(t, snap.Nodes, 3)
	assert.Equal(t, []string{"node_0", "node_1", "node_2"}, []string{snap.Nodes[0].ID, snap.Nodes[1].ID, snap.Nodes[2].ID})
	assert.Equal(t, snap.Nodes[0].Cluster, snap.Nodes[1].Cluster)
	assert.NotEqual(t, snap.Nodes[0].Cluster, snap.Nodes[2].Cluster)
	assert.Equal(t, "raft article body", snap.Nodes[0].ContentPreview)
	assert.Contains(t, snap.Nodes[0].Keywords, "raft")

	require.Len(t, snap.Edges, 1)
	assert.Equal(t, "node_0", snap.Edges[0].Source)
	assert.Equal(t, "node_1", snap.Edges[0].Target)
	assert.InDelta(t, 0.9, snap.Edges[0].Weight, 1e-9)

	assert.Len(t, snap.Clusters, 2)
	assert.Equal(t, "kmeans", snap.Metadata["clustering_method"])
	assert.Equal(t, 2, snap.Metadata["n_clusters"])
	assert.Equal(t, 3, snap.Metadata["total_articles"])
	assert.Equal(t, "table", snap.Metadata["embedding_backend"])
	assert.Equal(t, layout.MethodPCA, snap.Metadata["layout_method"])
	assert.Equal(t, 1, snap.Metadata["skipped_count"])
	assert.Equal(t, time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC), snap.CreatedAt)

	assert.Equal(t, domain.ProcessingSummary{
		TotalEntries:        4,
		SuccessfullyScraped: 3,
		FailedScrapes:       1,
		Skipped:             []domain.SkippedSource{{Source: threeRecords[2], Reason: "http status 404 Not Found"}},
		ClustersCreated:     2,
	}, res.Summary)

	stored, err := f.store.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", stored.ID)
	assert.Equal(t, []string{statusSuccess}, f.observer.statuses)
	assert.Equal(t, 1, f.observer.stored)
}

func TestProcessWithoutContent(t *testing.T) {
	t.Parallel()

	f := newFixture(tableBackend{vectors: threeVectors()}, fakeSource{})
	res, err := f.pipeline.Process(context.Background(), []domain.SourceRecord{{Title: "x", URL: "https://example.com/fail"}}, Options{})
	assert.ErrorIs(t, err, domain.ErrNoContent)
	assert.Equal(t, 1, res.Summary.FailedScrapes)

	_, err = f.store.Latest(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoSnapshots)
	assert.Equal(t, []string{statusNoContent}, f.observer.statuses)
}

func TestProcessEmbeddingFailureStoresNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(tableBackend{err: errors.New("connection refused")}, fakeSource{})
	_, err := f.pipeline.Process(context.Background(), threeRecords, Options{})

	var backendErr *domain.EmbeddingBackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "table", backendErr.Backend)

	_, err = f.store.Latest(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoSnapshots)
	assert.Equal(t, []string{statusFailed}, f.observer.statuses)
	assert.Zero(t, f.observer.stored)
}

func TestProcessRejectsBadClusteringBeforeFetching(t *testing.T) {
	t.Parallel()

	f := newFixture(tableBackend{vectors: threeVectors()}, fakeSource{})
	_, err := f.pipeline.Process(context.Background(), threeRecords, Options{ClusteringMethod: "spectral"})

	var clusterErr *domain.ClusteringError
	require.ErrorAs(t, err, &clusterErr)
	assert.Zero(t, f.fetcher.calls)
}

func TestProcessSourceUsesOverrides(t *testing.T) {
	t.Parallel()

	f := newFixture(tableBackend{vectors: threeVectors()}, fakeSource{records: threeRecords})
	res, err := f.pipeline.ProcessSource(context.Background(), Options{ClusteringMethod: "hierarchical", Clusters: 3})
	require.NoError(t, err)
	assert.Equal(t, "hierarchical", res.Snapshot.Metadata["clustering_method"])
	assert.Len(t, res.Snapshot.Clusters, 3)

	f = newFixture(tableBackend{}, fakeSource{err: errors.New("disk on fire")})
	_, err = f.pipeline.ProcessSource(context.Background(), Options{})
	assert.ErrorContains(t, err, "load records")
}

func TestBuildFromSuppliedVectors(t *testing.T) {
	t.Parallel()

	vectors := threeVectors()
	f := newFixture(nil, fakeSource{})
	snap, err := f.pipeline.Build(context.Background(), []Item{
		{Record: domain.SourceRecord{Title: "Raft", URL: "https://example.com/raft"}, Text: "raft consensus", Vector: vectors["raft"]},
		{Record: domain.SourceRecord{URL: "https://example.com/paxos"}, Text: "paxos consensus", Vector: vectors["paxos"]},
		{Record: domain.SourceRecord{Title: "Bread"}, Text: "bread baking", Vector: vectors["bread"]},
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "Article 1", snap.Nodes[1].Title)
	assert.Equal(t, suppliedBackend, snap.Metadata["embedding_backend"])
	assert.Equal(t, 3, snap.Metadata["embedding_dimension"])
	require.Len(t, snap.Edges, 1)

	_, err = f.store.Get(context.Background(), "fixed-id")
	require.NoError(t, err)
}

func TestBuildValidatesInput(t *testing.T) {
	t.Parallel()

	f := newFixture(nil, fakeSource{})
	_, err := f.pipeline.Build(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, domain.ErrNoContent)

	_, err = f.pipeline.Build(context.Background(), []Item{
		{Text: "a", Vector: []float64{1, 0}},
		{Text: "b", Vector: []float64{1, 0, 0}},
	}, Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBuildSameIDTwiceConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(nil, fakeSource{})
	items := []Item{{Text: "solo", Vector: []float64{1, 2}}}
	_, err := f.pipeline.Build(context.Background(), items, Options{})
	require.NoError(t, err)
	_, err = f.pipeline.Build(context.Background(), items, Options{})
	assert.ErrorIs(t, err, domain.ErrSnapshotExists)
}

func TestEmbedStage(t *testing.T) {
	t.Parallel()

	f := newFixture(tableBackend{vectors: threeVectors()}, fakeSource{})
	vectors, err := f.pipeline.Embed(context.Background(), []string{"raft x", "bread y"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.InDelta(t, 1.0, vectors[0][0], 1e-12)
}

func TestPreview(t *testing.T) {
	t.Parallel()

	short := strings.Repeat("é", previewLength)
	assert.Equal(t, short, preview(short))

	long := strings.Repeat("ü", previewLength+1)
	got := preview(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, previewLength+3, len([]rune(got)))
}

type onceDriver struct{ stopped bool }

func (d *onceDriver) Start(_ context.Context, job func(time.Time)) error {
	job(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return nil
}

func (d *onceDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRefreshesFromSource(t *testing.T) {
	t.Parallel()

	f := newFixture(tableBackend{vectors: threeVectors()}, fakeSource{records: threeRecords})
	driver := &onceDriver{}
	s := NewScheduler(driver, f.pipeline, logging.Discard())

	require.NoError(t, s.Start(context.Background()))
	_, err := f.store.Latest(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

// exactBackend looks texts up verbatim and reports no dimension, like hosted models using
// their default size.
type exactBackend struct {
	vectors map[string][]float64
}

func (b exactBackend) Name() string { return "exact" }

func (b exactBackend) Info() embedder.Info { return embedder.Info{Name: "exact", Model: "fixture"} }

func (b exactBackend) Encode(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if vec, ok := b.vectors[text]; ok {
			out[i] = vec
			continue
		}
		out[i] = []float64{0, 0, 0, 1}
	}
	return out, nil
}

func TestProcessRecordsProducedDimension(t *testing.T) {
	t.Parallel()

	f := newFixture(exactBackend{vectors: map[string][]float64{
		"raft article body":  {1, 0, 0, 0},
		"bread article body": {0, 1, 0, 0},
	}}, fakeSource{})
	res, err := f.pipeline.Process(context.Background(), []domain.SourceRecord{
		{Title: "raft", URL: "https://example.com/raft"},
		{Title: "bread", URL: "https://example.com/bread"},
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Snapshot.Metadata["embedding_dimension"])
	assert.Equal(t, "exact", res.Snapshot.Metadata["embedding_backend"])
}

func TestProcessRanksNodeKeywordsByEmbedding(t *testing.T) {
	t.Parallel()

	f := newFixture(exactBackend{vectors: map[string][]float64{
		"raft article body":  {1, 0, 0, 0},
		"bread article body": {0, 1, 0, 0},
		"bread":              {0, 0.9, 0.1, 0},
	}}, fakeSource{})
	res, err := f.pipeline.Process(context.Background(), []domain.SourceRecord{
		{Title: "raft", URL: "https://example.com/raft"},
		{Title: "bread", URL: "https://example.com/bread"},
	}, Options{})
	require.NoError(t, err)

	require.Len(t, res.Snapshot.Nodes, 2)
	// The whole text is its own best phrase and covers every shorter one.
	assert.Equal(t, []string{"raft article body"}, res.Snapshot.Nodes[0].Keywords)
	assert.Equal(t, []string{"bread article body"}, res.Snapshot.Nodes[1].Keywords)

	// Cluster keywords stay frequency ranked.
	for _, c := range res.Snapshot.Clusters {
		for _, kw := range c.Keywords {
			assert.NotContains(t, kw, " ")
		}
	}
}

func TestBuildKeepsFrequencyNodeKeywords(t *testing.T) {
	t.Parallel()

	f := newFixture(exactBackend{}, fakeSource{})
	snap, err := f.pipeline.Build(context.Background(), []Item{
		{Text: "raft consensus raft", Vector: []float64{1, 0}},
		{Text: "bread baking", Vector: []float64{0, 1}},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"raft", "consensus"}, snap.Nodes[0].Keywords)
	assert.Equal(t, 2, snap.Metadata["embedding_dimension"])
}

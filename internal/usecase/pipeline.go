package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"MindMapService/internal/cluster"
	"MindMapService/internal/config"
	"MindMapService/internal/domain"
	"MindMapService/internal/embedder"
	"MindMapService/internal/keywords"
	"MindMapService/internal/layout"
	"MindMapService/internal/ports"
	"MindMapService/internal/similarity"
)

const (
	previewLength = 200

	statusSuccess   = "success"
	statusNoContent = "no_content"
	statusFailed    = "error"

	// suppliedBackend names the embedding source when vectors come with the request.
	suppliedBackend = "supplied"
)

// Settings holds the per-stage tuning taken from configuration.
type Settings struct {
	Embedding      embedder.Options
	Graph          similarity.Options
	Clustering     config.ClusteringConfig
	Layout         layout.Options
	ComputeWorkers int
}

// SettingsFromConfig maps configuration sections onto pipeline settings.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		Embedding: embedder.Options{BatchSize: cfg.Embedding.BatchSize, Normalize: cfg.Embedding.Normalize},
		Graph: similarity.Options{
			Threshold: cfg.Graph.Threshold,
			TopK:      cfg.Graph.TopK,
			MaxEdges:  cfg.Graph.MaxEdges,
		},
		Clustering: cfg.Clustering,
		Layout: layout.Options{
			Cutoff:       cfg.Layout.Cutoff,
			Perplexity:   cfg.Layout.Perplexity,
			Iterations:   cfg.Layout.Iterations,
			LearningRate: cfg.Layout.LearningRate,
			Seed:         cfg.Layout.Seed,
		},
		ComputeWorkers: cfg.Pipeline.ComputeWorkers,
	}
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source   ports.RecordSource
	Fetcher  ports.ContentFetcher
	Backend  embedder.Backend
	Store    ports.SnapshotStore
	Observer ports.RunObserver
	Logger   *slog.Logger
	Settings Settings

	// Now and NewID default to the wall clock and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// Pipeline implements the mind-map construction workflow.
type Pipeline struct {
	source   ports.RecordSource
	fetcher  ports.ContentFetcher
	backend  embedder.Backend
	store    ports.SnapshotStore
	observer ports.RunObserver
	logger   *slog.Logger
	settings Settings
	compute  *semaphore.Weighted
	phrases  *keywords.Semantic
	now      func() time.Time
	newID    func() string
}

// Options override clustering for a single run. Zero values keep the configured choice.
type Options struct {
	ClusteringMethod string `json:"clustering_method,omitempty" validate:"omitempty,oneof=kmeans dbscan hierarchical"`
	Clusters         int    `json:"n_clusters,omitempty" validate:"gte=0"`
}

// Item is one document entering the compute stages with its vector already known.
type Item struct {
	Record domain.SourceRecord
	Text   string
	Vector []float64
}

// Result is the outcome of a full run.
type Result struct {
	Snapshot domain.Snapshot
	Summary  domain.ProcessingSummary
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	workers := deps.Settings.ComputeWorkers
	if workers <= 0 {
		workers = 1
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Pipeline{
		source:   deps.Source,
		fetcher:  deps.Fetcher,
		backend:  deps.Backend,
		store:    deps.Store,
		observer: deps.Observer,
		logger:   deps.Logger,
		settings: deps.Settings,
		compute:  semaphore.NewWeighted(int64(workers)),
		phrases:  keywords.NewSemantic(deps.Backend, deps.Settings.Embedding, deps.Logger),
		now:      now,
		newID:    newID,
	}
}

// Backend exposes the embedding backend in use.
func (p *Pipeline) Backend() embedder.Backend {
	return p.backend
}

// ProcessSource runs the pipeline over every record of the configured source.
func (p *Pipeline) ProcessSource(ctx context.Context, opts Options) (Result, error) {
	if p.source == nil {
		return Result{}, fmt.Errorf("record source is not configured")
	}
	records, err := p.source.Records(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load records: %w", err)
	}
	return p.Process(ctx, records, opts)
}

// Process fetches, embeds, links, clusters, lays out and stores one snapshot. Per-record fetch
// failures are reported in the summary; any other failure aborts the run.
func (p *Pipeline) Process(ctx context.Context, records []domain.SourceRecord, opts Options) (Result, error) {
	started := p.now()
	res, err := p.process(ctx, records, opts)
	p.finish(started, err)
	return res, err
}

func (p *Pipeline) process(ctx context.Context, records []domain.SourceRecord, opts Options) (Result, error) {
	strategy, err := p.strategy(opts)
	if err != nil {
		return Result{}, err
	}

	acquired, err := p.Scrape(ctx, records)
	if err != nil {
		return Result{}, err
	}
	summary := domain.ProcessingSummary{
		TotalEntries:        len(records),
		SuccessfullyScraped: len(acquired.Contents),
		FailedScrapes:       len(acquired.Skipped),
		Skipped:             acquired.Skipped,
	}
	if summary.Skipped == nil {
		summary.Skipped = []domain.SkippedSource{}
	}
	if len(acquired.Contents) == 0 {
		return Result{Summary: summary}, domain.ErrNoContent
	}

	if err := p.compute.Acquire(ctx, 1); err != nil {
		return Result{Summary: summary}, err
	}
	texts := make([]string, len(acquired.Contents))
	for i, c := range acquired.Contents {
		texts[i] = c.Text
	}
	vectors, err := embedder.Embed(ctx, p.backend, texts, p.settings.Embedding)
	if err != nil {
		p.compute.Release(1)
		return Result{Summary: summary}, err
	}

	items := make([]Item, len(acquired.Contents))
	for i, c := range acquired.Contents {
		items[i] = Item{Record: c.Source, Text: c.Text, Vector: vectors[i]}
	}
	snapshot, err := p.assemble(ctx, items, strategy, p.backend.Info(), true)
	p.compute.Release(1)
	if err != nil {
		return Result{Summary: summary}, err
	}
	snapshot.Metadata["skipped_count"] = len(acquired.Skipped)

	if err := p.put(ctx, snapshot); err != nil {
		return Result{Summary: summary}, err
	}
	summary.ClustersCreated = len(snapshot.Clusters)
	return Result{Snapshot: snapshot, Summary: summary}, nil
}

// Build assembles and stores a snapshot from caller-supplied vectors, skipping acquisition
// and embedding.
func (p *Pipeline) Build(ctx context.Context, items []Item, opts Options) (domain.Snapshot, error) {
	started := p.now()
	snapshot, err := p.build(ctx, items, opts)
	p.finish(started, err)
	return snapshot, err
}

func (p *Pipeline) build(ctx context.Context, items []Item, opts Options) (domain.Snapshot, error) {
	strategy, err := p.strategy(opts)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if len(items) == 0 {
		return domain.Snapshot{}, domain.ErrNoContent
	}
	dim := len(items[0].Vector)
	for i, item := range items {
		if len(item.Vector) == 0 || len(item.Vector) != dim {
			return domain.Snapshot{}, fmt.Errorf("%w: embedding %d has dimension %d, expected %d", domain.ErrInvalidInput, i, len(item.Vector), dim)
		}
	}

	if err := p.compute.Acquire(ctx, 1); err != nil {
		return domain.Snapshot{}, err
	}
	snapshot, err := p.assemble(ctx, items, strategy, embedder.Info{Name: suppliedBackend}, false)
	p.compute.Release(1)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := p.put(ctx, snapshot); err != nil {
		return domain.Snapshot{}, err
	}
	return snapshot, nil
}

// Scrape runs acquisition only.
func (p *Pipeline) Scrape(ctx context.Context, records []domain.SourceRecord) (domain.AcquisitionResult, error) {
	return p.ScrapeWithin(ctx, records, ports.FetchLimits{})
}

// ScrapeWithin is Scrape under per-request limits. Fetchers that cannot apply limits run
// with their configured ones.
func (p *Pipeline) ScrapeWithin(ctx context.Context, records []domain.SourceRecord, limits ports.FetchLimits) (domain.AcquisitionResult, error) {
	if p.fetcher == nil {
		return domain.AcquisitionResult{}, fmt.Errorf("content fetcher is not configured")
	}
	p.debug("fetch records", "records", len(records))

	var (
		res domain.AcquisitionResult
		err error
	)
	if limited, ok := p.fetcher.(ports.LimitedFetcher); ok {
		res, err = limited.FetchAllWithin(ctx, records, limits)
	} else {
		res, err = p.fetcher.FetchAll(ctx, records)
	}
	if err != nil {
		return domain.AcquisitionResult{}, fmt.Errorf("fetch records: %w", err)
	}
	return res, nil
}

// Embed runs the embedding stage only, bounded by the compute limit.
func (p *Pipeline) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return p.EmbedWith(ctx, texts, EmbedOptions{})
}

// EmbedOptions overrides the embedding stage for one request.
type EmbedOptions struct {
	// Backend replaces the pipeline's backend when set.
	Backend   embedder.Backend
	BatchSize int
	Normalize *bool
}

// EmbedWith is Embed with per-request overrides.
func (p *Pipeline) EmbedWith(ctx context.Context, texts []string, opts EmbedOptions) ([][]float64, error) {
	backend := p.backend
	if opts.Backend != nil {
		backend = opts.Backend
	}
	settings := p.settings.Embedding
	if opts.BatchSize > 0 {
		settings.BatchSize = opts.BatchSize
	}
	if opts.Normalize != nil {
		settings.Normalize = *opts.Normalize
	}

	if err := p.compute.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.compute.Release(1)
	return embedder.Embed(ctx, backend, texts, settings)
}

func (p *Pipeline) strategy(opts Options) (cluster.Strategy, error) {
	cfg := p.settings.Clustering
	if opts.ClusteringMethod != "" {
		cfg.Method = opts.ClusteringMethod
	}
	if opts.Clusters > 0 {
		cfg.Clusters = opts.Clusters
	}
	return cluster.New(cfg)
}

// assemble runs the graph and clustering stages side by side over one similarity matrix, then
// the layout. With semantic set, node keywords are ranked against the item vectors through the
// pipeline's backend; otherwise they are frequency ranked.
func (p *Pipeline) assemble(ctx context.Context, items []Item, strategy cluster.Strategy, info embedder.Info, semantic bool) (domain.Snapshot, error) {
	vectors := make([][]float64, len(items))
	texts := make([]string, len(items))
	for i, item := range items {
		vectors[i] = item.Vector
		texts[i] = item.Text
	}

	sims := similarity.Matrix(vectors)
	var (
		pairs      []similarity.Pair
		assignment cluster.Assignment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pairs = similarity.EdgesFromMatrix(sims, p.settings.Graph)
		return gctx.Err()
	})
	g.Go(func() error {
		var err error
		assignment, err = cluster.AssignWithSimilarity(vectors, sims, texts, strategy)
		if err != nil {
			return err
		}
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, err
	}

	projection := layout.Project(vectors, p.settings.Layout)
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	nodeKeywords, err := p.nodeKeywords(ctx, texts, vectors, semantic)
	if err != nil {
		return domain.Snapshot{}, err
	}

	nodes := make([]domain.Node, len(items))
	for i, item := range items {
		title := strings.TrimSpace(item.Record.Title)
		if title == "" {
			title = fmt.Sprintf("Article %d", i)
		}
		nodes[i] = domain.Node{
			ID:             domain.NodeID(i),
			Title:          title,
			URL:            item.Record.URL,
			Cluster:        assignment.Labels[i],
			Position:       projection.Positions[i],
			Keywords:       nodeKeywords[i],
			ContentPreview: preview(item.Text),
		}
	}

	edges := make([]domain.Edge, len(pairs))
	for i, pair := range pairs {
		edges[i] = domain.Edge{Source: domain.NodeID(pair.I), Target: domain.NodeID(pair.J), Weight: pair.Weight}
	}

	return domain.Snapshot{
		ID:       p.newID(),
		Nodes:    nodes,
		Edges:    edges,
		Clusters: assignment.Clusters,
		Metadata: map[string]any{
			"clustering_method":    strategy.Name(),
			"n_clusters":           len(assignment.Clusters),
			"total_articles":       len(items),
			"embedding_backend":    info.Name,
			"embedding_model":      info.Model,
			"embedding_dimension":  len(vectors[0]),
			"layout_method":        projection.Method,
			"layout_seed":          p.settings.Layout.Seed,
			"similarity_threshold": p.settings.Graph.Threshold,
			"top_k":                p.settings.Graph.TopK,
			"max_edges":            p.settings.Graph.MaxEdges,
		},
		CreatedAt: p.now().UTC(),
	}, nil
}

func (p *Pipeline) nodeKeywords(ctx context.Context, texts []string, vectors [][]float64, semantic bool) ([][]string, error) {
	if semantic && p.backend != nil {
		return p.phrases.Extract(ctx, texts, vectors, cluster.NodeKeywords)
	}
	out := make([][]string, len(texts))
	for i, text := range texts {
		out[i] = cluster.NodeKeywordsFor(text)
	}
	return out, nil
}

func (p *Pipeline) put(ctx context.Context, snapshot domain.Snapshot) error {
	if p.store == nil {
		return fmt.Errorf("snapshot store is not configured")
	}
	if _, err := p.store.Put(ctx, snapshot); err != nil {
		return fmt.Errorf("store mind map %s: %w", snapshot.ID, err)
	}
	if p.observer != nil {
		p.observer.SnapshotStored()
	}
	return nil
}

func (p *Pipeline) finish(started time.Time, err error) {
	status := statusSuccess
	switch {
	case errors.Is(err, domain.ErrNoContent):
		status = statusNoContent
	case err != nil:
		status = statusFailed
	}
	elapsed := p.now().Sub(started)
	if p.observer != nil {
		p.observer.RunCompleted(status, elapsed)
	}
	if p.logger == nil {
		return
	}
	if err != nil {
		p.logger.Warn("pipeline run failed", "status", status, "elapsed", elapsed, "error", err)
		return
	}
	p.logger.Info("pipeline run completed", "elapsed", elapsed)
}

// preview is the first previewLength runes of text, with an ellipsis when cut.
func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength]) + "..."
}

func (p *Pipeline) debug(msg string, args ...interface{}) {
	if p.logger == nil {
		return
	}
	p.logger.Debug(msg, args...)
}

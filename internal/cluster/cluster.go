// Package cluster partitions embedding vectors into topic groups and labels them with keywords.
package cluster

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"MindMapService/internal/config"
	"MindMapService/internal/domain"
	"MindMapService/internal/keywords"
)

const (
	// ClusterKeywords is the number of keywords kept per cluster.
	ClusterKeywords = 10
	// NodeKeywords is the number of keywords kept per node.
	NodeKeywords = 5

	defaultMinSamples = 2
	defaultRestarts   = 10
	defaultMaxIter    = 300
)

// Strategy assigns a label to every vector. Labels need not be contiguous; NoiseClusterID
// marks points outside every group.
type Strategy interface {
	Name() string
	Validate() error
	FitPredict(vectors [][]float64) ([]int, error)
}

// Assignment is the canonical result: Labels[i] is the cluster of point i and Clusters lists
// partition clusters 0..m-1 followed by the noise group when present.
type Assignment struct {
	Labels   []int
	Clusters []domain.Cluster
}

// New builds the strategy named by cfg.Method.
func New(cfg config.ClusteringConfig) (Strategy, error) {
	var s Strategy
	switch cfg.Method {
	case "kmeans", "":
		s = KMeans{K: cfg.Clusters, Restarts: cfg.Restarts, MaxIterations: cfg.MaxIterations, Seed: cfg.Seed}
	case "hierarchical":
		s = Hierarchical{K: cfg.Clusters}
	case "dbscan":
		minSamples := cfg.MinSamples
		if minSamples == 0 {
			minSamples = defaultMinSamples
		}
		s = DBSCAN{Eps: cfg.Eps, MinSamples: minSamples}
	default:
		return nil, &domain.ClusteringError{Reason: fmt.Sprintf("unknown method %q", cfg.Method)}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Assign runs strategy over vectors and derives cluster records from texts, which must be
// aligned with vectors.
func Assign(vectors [][]float64, texts []string, strategy Strategy) (Assignment, error) {
	return AssignWithSimilarity(vectors, nil, texts, strategy)
}

// AssignWithSimilarity is Assign with the cosine similarity matrix of vectors already
// computed. Strategies that measure cosine distance reuse sims instead of rebuilding it; a nil
// sims is computed on demand.
func AssignWithSimilarity(vectors [][]float64, sims *mat.SymDense, texts []string, strategy Strategy) (Assignment, error) {
	if strategy == nil {
		return Assignment{}, &domain.ClusteringError{Reason: "no strategy configured"}
	}
	if err := strategy.Validate(); err != nil {
		return Assignment{}, err
	}
	if len(texts) != len(vectors) {
		return Assignment{}, fmt.Errorf("assign clusters: %d texts for %d vectors", len(texts), len(vectors))
	}
	if sims != nil && sims.SymmetricDim() != len(vectors) {
		return Assignment{}, fmt.Errorf("assign clusters: %d×%d similarity matrix for %d vectors", sims.SymmetricDim(), sims.SymmetricDim(), len(vectors))
	}

	var labels []int
	if len(vectors) <= 1 {
		labels = make([]int, len(vectors))
	} else {
		var (
			raw []int
			err error
		)
		if shared, ok := strategy.(similarityStrategy); ok && sims != nil {
			raw, err = shared.fitSimilarity(vectors, sims)
		} else {
			raw, err = strategy.FitPredict(vectors)
		}
		if err != nil {
			return Assignment{}, err
		}
		if len(raw) != len(vectors) {
			return Assignment{}, fmt.Errorf("assign clusters: %s returned %d labels for %d points", strategy.Name(), len(raw), len(vectors))
		}
		labels = canonical(raw)
	}

	return Assignment{Labels: labels, Clusters: describe(labels, texts)}, nil
}

// canonical renumbers partition labels 0..m-1 in order of each cluster's first member.
func canonical(raw []int) []int {
	mapping := map[int]int{}
	labels := make([]int, len(raw))
	for i, l := range raw {
		if l < 0 {
			labels[i] = domain.NoiseClusterID
			continue
		}
		id, ok := mapping[l]
		if !ok {
			id = len(mapping)
			mapping[l] = id
		}
		labels[i] = id
	}
	return labels
}

func describe(labels []int, texts []string) []domain.Cluster {
	count := 0
	noise := false
	for _, l := range labels {
		if l == domain.NoiseClusterID {
			noise = true
			continue
		}
		count = max(count, l+1)
	}
	if len(labels) == 0 {
		count = 1
	}

	members := make([][]int, count)
	var noiseMembers []int
	for i, l := range labels {
		if l == domain.NoiseClusterID {
			noiseMembers = append(noiseMembers, i)
			continue
		}
		members[l] = append(members[l], i)
	}

	clusters := make([]domain.Cluster, 0, count+1)
	for id, idx := range members {
		memberTexts := make([]string, len(idx))
		for k, i := range idx {
			memberTexts[k] = texts[i]
		}
		kw := keywords.Top(memberTexts, ClusterKeywords)
		clusters = append(clusters, domain.Cluster{
			ID:         id,
			Name:       keywords.Name(kw),
			Keywords:   kw,
			ArticleIDs: nodeIDs(idx),
			Size:       len(idx),
		})
	}
	if noise {
		clusters = append(clusters, domain.Cluster{
			ID:         domain.NoiseClusterID,
			Name:       domain.NoiseClusterName,
			Keywords:   []string{},
			ArticleIDs: nodeIDs(noiseMembers),
			Size:       len(noiseMembers),
		})
	}
	return clusters
}

func nodeIDs(idx []int) []string {
	ids := make([]string, len(idx))
	for k, i := range idx {
		ids[k] = domain.NodeID(i)
	}
	return ids
}

// NodeKeywordsFor ranks the keywords of a single text.
func NodeKeywordsFor(text string) []string {
	return keywords.Top([]string{text}, NodeKeywords)
}

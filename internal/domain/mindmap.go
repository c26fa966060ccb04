package domain

import (
	"strconv"
	"time"
)

// NoiseClusterID is reserved for points a density-based strategy left ungrouped.
const NoiseClusterID = -1

// NoiseClusterName names the group of points left outside every cluster.
const NoiseClusterName = "Unclustered"

// NodeID is the identifier of the i-th node of a snapshot.
func NodeID(i int) string {
	return "node_" + strconv.Itoa(i)
}

// Position is a 2-D layout coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one article in a mind map.
type Node struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Cluster        int      `json:"cluster"`
	Position       Position `json:"position"`
	Keywords       []string `json:"keywords"`
	ContentPreview string   `json:"content_preview"`
}

// Edge links two similar nodes. Source always precedes Target in node order.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// Cluster groups topically related nodes.
type Cluster struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Keywords   []string `json:"keywords"`
	ArticleIDs []string `json:"article_ids"`
	Size       int      `json:"size"`
}

// Snapshot is one immutable, fully assembled mind map.
type Snapshot struct {
	ID        string         `json:"id"`
	Nodes     []Node         `json:"nodes"`
	Edges     []Edge         `json:"edges"`
	Clusters  []Cluster      `json:"clusters"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

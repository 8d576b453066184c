// Package trust computes direct and transitive trust over the evaluation
// graph. Queries load a bounded edge set for one domain up front and search
// it in memory.
package trust

import "irrl/internal/domain"

// Edge is one directed trust edge. S is the evaluation score scaled to
// [0,1]; W is the evaluator-declared weight.
type Edge struct {
	From string
	To   string
	S    float64
	W    float64
}

// Graph indexes edges by source node for one domain.
type Graph struct {
	adj map[string][]Edge
}

// BuildGraph folds evaluations into an adjacency index. All evaluations are
// assumed to share one domain; the caller filters beforehand.
func BuildGraph(evals []domain.Evaluation) *Graph {
	g := &Graph{adj: make(map[string][]Edge, len(evals))}
	for _, eval := range evals {
		g.adj[eval.FromEntity] = append(g.adj[eval.FromEntity], Edge{
			From: eval.FromEntity,
			To:   eval.ToEntity,
			S:    float64(eval.Score) / 100,
			W:    eval.Weight,
		})
	}
	return g
}

// Edges returns the outgoing edges of a node.
func (g *Graph) Edges(from string) []Edge {
	return g.adj[from]
}

// DirectTrust returns the weight-weighted mean of all direct edges from one
// node to another, and whether any such edge exists.
func (g *Graph) DirectTrust(from, to string) (float64, bool) {
	var sum, weights float64
	found := false
	for _, edge := range g.adj[from] {
		if edge.To != to {
			continue
		}
		found = true
		w := edge.W
		if w == 0 {
			w = 1
		}
		sum += edge.S * w
		weights += w
	}
	if !found {
		return 0, false
	}
	return sum / weights, true
}

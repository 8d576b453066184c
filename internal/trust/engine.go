package trust

import (
	"math"
	"sort"
	"strconv"
)

// Hard cap on explored frontier entries for one query.
const explorationCap = 5000

// Query parameters for a transitive trust computation. Zero-valued knobs
// take the defaults below (or the realm's rules when the service resolves
// them).
type Query struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	Domain        string  `json:"domain"`
	RealmID       string  `json:"realmId,omitempty"`
	MaxDepth      int     `json:"maxDepth,omitempty"`
	DecayFactor   float64 `json:"decayFactor,omitempty"`
	MinConfidence float64 `json:"minConfidence,omitempty"`
}

const (
	defaultMaxDepth      = 5
	defaultDecayFactor   = 0.8
	defaultMinConfidence = 0.1
)

func (q Query) withDefaults() Query {
	if q.MaxDepth == 0 {
		q.MaxDepth = defaultMaxDepth
	}
	if q.DecayFactor == 0 {
		q.DecayFactor = defaultDecayFactor
	}
	if q.MinConfidence == 0 {
		q.MinConfidence = defaultMinConfidence
	}
	return q
}

// Path is one completed route from source to target.
type Path struct {
	Path         []string  `json:"path"`
	Scores       []float64 `json:"scores"`
	FinalTrust   float64   `json:"finalTrust"`
	DecayApplied float64   `json:"decayApplied"`
}

// Metadata describes the search effort behind a result.
type Metadata struct {
	PathsExplored int  `json:"pathsExplored"`
	Direct        bool `json:"direct"`
	Truncated     bool `json:"truncated"`
}

// Result is a transitive trust answer.
type Result struct {
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Paths      []Path   `json:"paths"`
	BestPath   *Path    `json:"bestPath,omitempty"`
	Metadata   Metadata `json:"metadata"`
}

type frontierEntry struct {
	node   string
	path   []string
	scores []float64
	trust  float64
	depth  int
}

// Transitive runs the bounded breadth-first search of the query over the
// graph. A direct edge short-circuits the search entirely.
func Transitive(g *Graph, q Query) Result {
	q = q.withDefaults()

	if direct, ok := g.DirectTrust(q.From, q.To); ok {
		path := Path{
			Path:         []string{q.From, q.To},
			Scores:       []float64{direct},
			FinalTrust:   direct,
			DecayApplied: 0,
		}
		return Result{
			Score:      direct,
			Confidence: 1,
			Paths:      []Path{path},
			BestPath:   &path,
			Metadata:   Metadata{PathsExplored: 1, Direct: true},
		}
	}

	var (
		queue     []frontierEntry
		completed []Path
		visited   = map[string]struct{}{}
		explored  = 0
		truncated = false
	)

	// explored counts every candidate path considered, one per edge examined
	// during expansion. The hard cap bounds work on dense graphs.
	consider := func() bool {
		if explored >= explorationCap {
			truncated = true
			return false
		}
		explored++
		return true
	}

	// Seed frontier: first-hop edges carry no decay.
	for _, edge := range g.Edges(q.From) {
		if !consider() {
			break
		}
		if edge.To == q.From {
			continue
		}
		entry := frontierEntry{
			node:   edge.To,
			path:   []string{q.From, edge.To},
			scores: []float64{edge.S},
			trust:  edge.S,
			depth:  1,
		}
		if edge.To == q.To {
			completed = append(completed, completePath(entry, q.DecayFactor))
			continue
		}
		queue = append(queue, entry)
	}

	for len(queue) > 0 && !truncated {
		entry := queue[0]
		queue = queue[1:]

		if entry.depth >= q.MaxDepth {
			continue
		}
		for _, edge := range g.Edges(entry.node) {
			if !consider() {
				break
			}
			if containsNode(entry.path, edge.To) {
				continue
			}
			next := frontierEntry{
				node:   edge.To,
				path:   appendCopy(entry.path, edge.To),
				scores: append(append([]float64(nil), entry.scores...), edge.S),
				trust:  entry.trust * edge.S * q.DecayFactor,
				depth:  entry.depth + 1,
			}
			if next.trust*math.Pow(q.DecayFactor, float64(next.depth)) < q.MinConfidence {
				continue
			}
			if edge.To == q.To {
				completed = append(completed, completePath(next, q.DecayFactor))
				continue
			}
			key := edge.To + "@" + strconv.Itoa(next.depth)
			if _, seen := visited[key]; seen {
				continue
			}
			visited[key] = struct{}{}
			queue = append(queue, next)
		}
	}

	meta := Metadata{PathsExplored: explored, Truncated: truncated}
	if len(completed) == 0 {
		return Result{Score: 0, Confidence: 0, Paths: []Path{}, Metadata: meta}
	}

	sort.SliceStable(completed, func(i, j int) bool {
		if completed[i].FinalTrust != completed[j].FinalTrust {
			return completed[i].FinalTrust > completed[j].FinalTrust
		}
		return len(completed[i].Path) < len(completed[j].Path)
	})

	// Best evidence dominates; secondary paths are geometrically dampened so
	// a flood of weak corroborations cannot outvote it.
	score := completed[0].FinalTrust
	for i := 1; i < len(completed) && i <= 4; i++ {
		score += completed[i].FinalTrust * math.Pow(0.5, float64(i))
	}
	score = math.Min(1, math.Max(0, score))

	confidence := math.Min(1, float64(len(completed))/3)

	paths := completed
	if len(paths) > 10 {
		paths = paths[:10]
	}
	return Result{
		Score:      score,
		Confidence: confidence,
		Paths:      paths,
		BestPath:   &paths[0],
		Metadata:   meta,
	}
}

func completePath(e frontierEntry, decay float64) Path {
	attenuation := math.Pow(decay, float64(e.depth-1))
	return Path{
		Path:         e.path,
		Scores:       e.scores,
		FinalTrust:   e.trust * attenuation,
		DecayApplied: 1 - attenuation,
	}
}

func containsNode(path []string, node string) bool {
	for _, p := range path {
		if p == node {
			return true
		}
	}
	return false
}

func appendCopy(path []string, node string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, node)
}

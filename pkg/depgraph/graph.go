// Package depgraph provides the feature dependency engine: a DAG over
// features with cycle detection, priority-aware topological ordering,
// critical-path analysis, and wave-based execution planning.
package depgraph

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Status of a feature in the development lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusBlocked    Status = "blocked"
)

// ParseStatus validates a status string, defaulting to pending.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusComplete, StatusBlocked:
		return Status(s)
	default:
		return StatusPending
	}
}

// Feature is a node in the dependency graph.
type Feature struct {
	ID             string   `json:"id"`
	Description    string   `json:"description"`
	Priority       int      `json:"priority"`
	Dependencies   []string `json:"dependencies"`
	Status         Status   `json:"status"`
	EffortEstimate int      `json:"effort_estimate"`
	Passes         bool     `json:"passes"`
}

// Graph is the feature dependency DAG. Features live in a single keyed
// container; edges and reverse edges are id -> set-of-id maps.
type Graph struct {
	features     map[string]*Feature
	edges        map[string]map[string]struct{} // feature -> dependencies
	reverseEdges map[string]map[string]struct{} // feature -> dependents
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		features:     make(map[string]*Feature),
		edges:        make(map[string]map[string]struct{}),
		reverseEdges: make(map[string]map[string]struct{}),
	}
}

// NodeCount returns the number of features.
func (g *Graph) NodeCount() int {
	return len(g.features)
}

// AddFeature inserts a feature and its dependency edges. Re-adding an id
// replaces the feature.
func (g *Graph) AddFeature(f *Feature) {
	g.features[f.ID] = f

	for _, depID := range f.Dependencies {
		if g.edges[f.ID] == nil {
			g.edges[f.ID] = make(map[string]struct{})
		}
		g.edges[f.ID][depID] = struct{}{}

		if g.reverseEdges[depID] == nil {
			g.reverseEdges[depID] = make(map[string]struct{})
		}
		g.reverseEdges[depID][f.ID] = struct{}{}
	}
}

// GetFeature returns a feature by id.
func (g *Graph) GetFeature(id string) (*Feature, bool) {
	f, ok := g.features[id]
	return f, ok
}

// Features returns all features, sorted by id for deterministic iteration.
func (g *Graph) Features() []*Feature {
	out := make([]*Feature, 0, len(g.features))
	for _, f := range g.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetDependencies returns direct dependency ids of a feature.
func (g *Graph) GetDependencies(id string) []string {
	return setToSorted(g.edges[id])
}

// GetDependents returns ids of features depending on the given one.
func (g *Graph) GetDependents(id string) []string {
	return setToSorted(g.reverseEdges[id])
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HasCycle reports whether the graph contains a dependency cycle.
func (g *Graph) HasCycle() bool {
	return len(g.FindCycles()) > 0
}

// FindCycles returns dependency cycles found by DFS. Each cycle starts at the
// first occurrence of the re-visited node along the current path and is
// closed by repeating that node.
func (g *Graph) FindCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]struct{})
	onStack := make(map[string]struct{})
	var path []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		visited[node] = struct{}{}
		onStack[node] = struct{}{}
		path = append(path, node)

		for _, neighbor := range setToSorted(g.edges[node]) {
			if _, seen := visited[neighbor]; !seen {
				if dfs(neighbor) {
					return true
				}
			} else if _, active := onStack[neighbor]; active {
				start := 0
				for i, id := range path {
					if id == neighbor {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), neighbor)
				cycles = append(cycles, cycle)
				return true
			}
		}

		path = path[:len(path)-1]
		delete(onStack, node)
		return false
	}

	for _, f := range g.Features() {
		if _, seen := visited[f.ID]; !seen {
			dfs(f.ID)
		}
	}

	return cycles
}

// TopologicalSort orders features dependencies-first using Kahn's algorithm;
// among available nodes the numerically smallest priority pops first.
// Returns nil on cycle.
func (g *Graph) TopologicalSort() []*Feature {
	if g.HasCycle() {
		return nil
	}

	inDegree := make(map[string]int, len(g.features))
	for id := range g.features {
		inDegree[id] = len(g.edges[id])
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]*Feature, 0, len(g.features))
	for len(queue) > 0 {
		sort.Slice(queue, func(i, j int) bool {
			pi, pj := g.features[queue[i]].Priority, g.features[queue[j]].Priority
			if pi != pj {
				return pi < pj
			}
			return queue[i] < queue[j]
		})
		node := queue[0]
		queue = queue[1:]
		result = append(result, g.features[node])

		for dependent := range g.reverseEdges[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	return result
}

// GetReadyFeatures returns features that are neither complete nor in
// progress and whose dependencies are all complete, priority ascending.
func (g *Graph) GetReadyFeatures() []*Feature {
	var ready []*Feature

	for _, f := range g.Features() {
		if f.Status == StatusComplete || f.Status == StatusInProgress {
			continue
		}

		depsComplete := true
		for _, depID := range f.Dependencies {
			dep, ok := g.features[depID]
			if !ok || dep.Status != StatusComplete {
				depsComplete = false
				break
			}
		}

		if depsComplete {
			ready = append(ready, f)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool { return ready[i].Priority < ready[j].Priority })
	return ready
}

// GetBlockedFeatures returns incomplete features with at least one incomplete
// dependency.
func (g *Graph) GetBlockedFeatures() []*Feature {
	var blocked []*Feature

	for _, f := range g.Features() {
		if f.Status == StatusComplete {
			continue
		}

		for _, depID := range f.Dependencies {
			dep, ok := g.features[depID]
			if !ok || dep.Status != StatusComplete {
				blocked = append(blocked, f)
				break
			}
		}
	}

	return blocked
}

type featuresFile struct {
	Features []featureDoc `json:"features"`
}

type featureDoc struct {
	ID             string   `json:"id"`
	Description    string   `json:"description"`
	Priority       *int     `json:"priority"`
	Dependencies   []string `json:"dependencies"`
	Status         string   `json:"status"`
	EffortEstimate *int     `json:"effort_estimate"`
	Passes         bool     `json:"passes"`
}

// FromJSON loads a graph from a features file: {"features": [...]}. Unknown
// fields are ignored; missing priority defaults to 99 and missing effort to 1.
func FromJSON(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read features file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a graph from features JSON bytes.
func Parse(data []byte) (*Graph, error) {
	var doc featuresFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal features: %w", err)
	}

	graph := NewGraph()
	for _, fd := range doc.Features {
		if fd.ID == "" {
			return nil, fmt.Errorf("feature with empty id")
		}

		priority := 99
		if fd.Priority != nil {
			priority = *fd.Priority
		}
		effort := 1
		if fd.EffortEstimate != nil {
			effort = *fd.EffortEstimate
		}

		graph.AddFeature(&Feature{
			ID:             fd.ID,
			Description:    fd.Description,
			Priority:       priority,
			Dependencies:   fd.Dependencies,
			Status:         ParseStatus(fd.Status),
			EffortEstimate: effort,
			Passes:         fd.Passes,
		})
	}

	return graph, nil
}

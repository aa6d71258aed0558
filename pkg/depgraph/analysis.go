package depgraph

import (
	"fmt"
	"sort"
	"strings"
)

// FindCriticalPath returns the effort-weighted longest path through the
// graph, dependencies first. For each node in topological order,
// dist[v] = effort(v) + max(dist[u] for u in deps(v)). Returns nil on cycle.
func (g *Graph) FindCriticalPath() []*Feature {
	sorted := g.TopologicalSort()
	if sorted == nil {
		return nil
	}
	if len(sorted) == 0 {
		return []*Feature{}
	}

	dist := make(map[string]int, len(sorted))
	pred := make(map[string]string, len(sorted))

	for _, f := range sorted {
		dist[f.ID] = f.EffortEstimate

		for _, depID := range f.Dependencies {
			if depDist, ok := dist[depID]; ok {
				if candidate := depDist + f.EffortEstimate; candidate > dist[f.ID] {
					dist[f.ID] = candidate
					pred[f.ID] = depID
				}
			}
		}
	}

	endNode := ""
	for _, f := range sorted {
		if endNode == "" || dist[f.ID] > dist[endNode] {
			endNode = f.ID
		}
	}

	var path []*Feature
	for current := endNode; current != ""; current = pred[current] {
		f, ok := g.features[current]
		if !ok {
			break
		}
		path = append(path, f)
	}

	// Reverse into dependencies-first order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path
}

// CriticalPathWeight returns the total effort along the critical path.
func (g *Graph) CriticalPathWeight() int {
	total := 0
	for _, f := range g.FindCriticalPath() {
		total += f.EffortEstimate
	}
	return total
}

// PriorityScores computes per-feature scores:
// (100 - priority) + 10 * dependents + 50 critical-path bonus.
func (g *Graph) PriorityScores() map[string]float64 {
	scores := make(map[string]float64, len(g.features))

	criticalIDs := make(map[string]struct{})
	for _, f := range g.FindCriticalPath() {
		criticalIDs[f.ID] = struct{}{}
	}

	for id, f := range g.features {
		score := float64(100 - f.Priority)
		score += float64(len(g.reverseEdges[id])) * 10
		if _, onPath := criticalIDs[id]; onPath {
			score += 50
		}
		scores[id] = score
	}

	return scores
}

// CreateSequentialPlan returns the priority-aware topological order.
func (g *Graph) CreateSequentialPlan() []*Feature {
	return g.TopologicalSort()
}

// CreateParallelPlan groups features into waves: each wave holds the
// not-yet-planned features whose dependencies are all in prior waves, sorted
// by priority. Returns nil on cycle.
func (g *Graph) CreateParallelPlan() [][]*Feature {
	if g.HasCycle() {
		return nil
	}

	remaining := make(map[string]struct{}, len(g.features))
	for id := range g.features {
		remaining[id] = struct{}{}
	}
	planned := make(map[string]struct{}, len(g.features))

	var waves [][]*Feature
	for len(remaining) > 0 {
		var wave []*Feature
		for id := range remaining {
			satisfied := true
			for depID := range g.edges[id] {
				if _, done := planned[depID]; !done {
					satisfied = false
					break
				}
			}
			if satisfied {
				wave = append(wave, g.features[id])
			}
		}

		if len(wave) == 0 {
			break
		}

		sort.SliceStable(wave, func(i, j int) bool {
			if wave[i].Priority != wave[j].Priority {
				return wave[i].Priority < wave[j].Priority
			}
			return wave[i].ID < wave[j].ID
		})
		waves = append(waves, wave)

		for _, f := range wave {
			planned[f.ID] = struct{}{}
			delete(remaining, f.ID)
		}
	}

	return waves
}

// NextFeature returns the ready feature with the highest priority score, or
// nil when nothing is ready.
func (g *Graph) NextFeature() *Feature {
	ready := g.GetReadyFeatures()
	if len(ready) == 0 {
		return nil
	}

	scores := g.PriorityScores()
	sort.SliceStable(ready, func(i, j int) bool {
		return scores[ready[i].ID] > scores[ready[j].ID]
	})

	return ready[0]
}

// ToMermaid renders the graph as a Mermaid flowchart. Descriptions are
// truncated to 30 characters; non-pending statuses get a class suffix.
func (g *Graph) ToMermaid() string {
	lines := []string{"graph TD"}

	for _, f := range g.Features() {
		style := ""
		switch f.Status {
		case StatusComplete:
			style = ":::complete"
		case StatusInProgress:
			style = ":::inprogress"
		case StatusBlocked:
			style = ":::blocked"
		}

		desc := f.Description
		if len(desc) > 30 {
			desc = desc[:30]
		}
		lines = append(lines, fmt.Sprintf("    %s[\"%s: %s\"]%s", f.ID, f.ID, desc, style))
	}

	for _, f := range g.Features() {
		for _, depID := range g.GetDependencies(f.ID) {
			lines = append(lines, fmt.Sprintf("    %s --> %s", depID, f.ID))
		}
	}

	lines = append(lines, "")
	lines = append(lines, "    classDef complete fill:#90EE90")
	lines = append(lines, "    classDef inprogress fill:#FFE4B5")
	lines = append(lines, "    classDef blocked fill:#FFB6C1")

	return strings.Join(lines, "\n")
}
